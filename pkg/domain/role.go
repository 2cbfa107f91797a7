package domain

import "fmt"

// Role is a party's side of one negotiation. It is independent of who
// proposed and who responded.
type Role string

const (
	Buyer  Role = "Buyer"
	Seller Role = "Seller"
)

func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case Buyer, Seller:
		return Role(s), nil
	}
	switch s {
	case "buyer", "BUYER":
		return Buyer, nil
	case "seller", "SELLER":
		return Seller, nil
	}
	return "", fmt.Errorf("role %q invalid: must be Buyer or Seller", s)
}

func (r Role) Opposite() Role {
	if r == Buyer {
		return Seller
	}
	return Buyer
}

func (r Role) Valid() bool { return r == Buyer || r == Seller }

func (r Role) String() string { return string(r) }
