// Package auth holds the closed role set and the per-operation permission
// and visibility rules of the procurement workflow. Handlers delegate every
// role/ownership decision here so the matrix is testable on its own.
package auth

// Role of an authenticated principal. The set is closed.
type Role string

const (
	RoleBuyer  Role = "buyer"
	RoleVendor Role = "vendor"
	RoleAdmin  Role = "admin"
)

func ValidRole(r Role) bool {
	return r == RoleBuyer || r == RoleVendor || r == RoleAdmin
}

// Principal is the authenticated identity every operation receives.
// Authentication happens upstream; this package only authorizes.
type Principal struct {
	ID   int
	Role Role
}

// Visibility describes which rows of a collection a principal may list.
// Nil/false fields mean "no restriction on that axis".
type Visibility struct {
	BuyerID  *int
	VendorID *int
	OpenOnly bool
}

// RfqVisibility: buyers see their own RFQs, vendors see open ones,
// admins see all.
func RfqVisibility(p Principal) Visibility {
	switch p.Role {
	case RoleBuyer:
		id := p.ID
		return Visibility{BuyerID: &id}
	case RoleVendor:
		return Visibility{OpenOnly: true}
	default:
		return Visibility{}
	}
}

// CanViewRfq applies the same rule to a single RFQ.
func CanViewRfq(p Principal, rfqBuyerID int, rfqStatus string) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleBuyer:
		return rfqBuyerID == p.ID
	case RoleVendor:
		return rfqStatus == "open"
	}
	return false
}

// CanMutateRfq: only the owning buyer edits or deletes an RFQ.
func CanMutateRfq(p Principal, rfqBuyerID int) bool {
	return p.Role == RoleBuyer && rfqBuyerID == p.ID
}

// QuotationVisibility: vendors see their own quotations, buyers see
// quotations against RFQs they own, admins see all.
func QuotationVisibility(p Principal) Visibility {
	switch p.Role {
	case RoleVendor:
		id := p.ID
		return Visibility{VendorID: &id}
	case RoleBuyer:
		id := p.ID
		return Visibility{BuyerID: &id}
	default:
		return Visibility{}
	}
}

func CanViewQuotation(p Principal, quotationVendorID, rfqBuyerID int) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleVendor:
		return quotationVendorID == p.ID
	case RoleBuyer:
		return rfqBuyerID == p.ID
	}
	return false
}

// IsQuotationVendor: the vendor path of a quotation update/delete.
func IsQuotationVendor(p Principal, quotationVendorID int) bool {
	return p.Role == RoleVendor && quotationVendorID == p.ID
}

// IsQuotationBuyer: the buyer path of a quotation update (status decisions).
func IsQuotationBuyer(p Principal, rfqBuyerID int) bool {
	return p.Role == RoleBuyer && rfqBuyerID == p.ID
}

// quotationDecisions are the only statuses a buyer may set on a quotation.
var quotationDecisions = map[string]bool{
	"accepted":     true,
	"rejected":     true,
	"under_review": true,
}

func ValidQuotationDecision(status string) bool {
	return quotationDecisions[status]
}

// ContractVisibility: each party sees contracts it is named on; admins all.
func ContractVisibility(p Principal) Visibility {
	switch p.Role {
	case RoleBuyer:
		id := p.ID
		return Visibility{BuyerID: &id}
	case RoleVendor:
		id := p.ID
		return Visibility{VendorID: &id}
	default:
		return Visibility{}
	}
}

func CanViewContract(p Principal, buyerID, vendorID int) bool {
	switch p.Role {
	case RoleAdmin:
		return true
	case RoleBuyer:
		return buyerID == p.ID
	case RoleVendor:
		return vendorID == p.ID
	}
	return false
}

// ContractUpdateGrant enumerates what a principal may change on a contract.
type ContractUpdateGrant struct {
	Dates      bool
	Status     bool
	ActiveOnly bool // status change allowed only while the contract is Active
}

// ContractUpdatePolicy: owning buyer and admin may change dates and status;
// the owning vendor may change status only, and only out of Active.
func ContractUpdatePolicy(p Principal, buyerID, vendorID int) (ContractUpdateGrant, bool) {
	switch p.Role {
	case RoleAdmin:
		return ContractUpdateGrant{Dates: true, Status: true}, true
	case RoleBuyer:
		if buyerID == p.ID {
			return ContractUpdateGrant{Dates: true, Status: true}, true
		}
	case RoleVendor:
		if vendorID == p.ID {
			return ContractUpdateGrant{Status: true, ActiveOnly: true}, true
		}
	}
	return ContractUpdateGrant{}, false
}
