package dupes

// PhoneKey is compared by exact string equality; no trimming, country-code or
// punctuation canonicalization is applied.
type PhoneKey string

const NoPhone PhoneKey = "N/A"

func PhoneKeyOf(order Order) PhoneKey {
	for _, candidate := range []string{order.CustomerPhone, order.Phone, order.BillingPhone, order.ShippingPhone} {
		if candidate != "" {
			return PhoneKey(candidate)
		}
	}
	return NoPhone
}

func (k PhoneKey) Resolved() bool {
	return k != "" && k != NoPhone
}
