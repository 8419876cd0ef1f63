package message

import "errors"

// ErrCustomerNotFound indicates the chat user has never interacted
// with the tenant.
var ErrCustomerNotFound = errors.New("customer not found")
