package entitlements

const (
	userKeyPrefix     = "stripe:user:"
	customerKeyPrefix = "stripe:customer:"
)

// UserToCustomerKey returns the cache key holding the userID → customerID mapping.
// The literal format is part of the external contract; existing cache entries
// depend on it surviving releases unchanged.
func UserToCustomerKey(userID string) string {
	return userKeyPrefix + userID
}

// CustomerDataKey returns the cache key holding the canonical subscription
// record for a billing customer.
func CustomerDataKey(customerID string) string {
	return customerKeyPrefix + customerID
}
