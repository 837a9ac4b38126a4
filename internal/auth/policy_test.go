package auth_test

import (
	"testing"

	"procurement/internal/auth"

	"github.com/stretchr/testify/require"
)

func TestRfqVisibility(t *testing.T) {
	buyer := auth.Principal{ID: 1, Role: auth.RoleBuyer}
	vendor := auth.Principal{ID: 2, Role: auth.RoleVendor}
	admin := auth.Principal{ID: 3, Role: auth.RoleAdmin}

	vis := auth.RfqVisibility(buyer)
	require.NotNil(t, vis.BuyerID)
	require.Equal(t, 1, *vis.BuyerID)
	require.False(t, vis.OpenOnly)

	vis = auth.RfqVisibility(vendor)
	require.Nil(t, vis.BuyerID)
	require.True(t, vis.OpenOnly)

	vis = auth.RfqVisibility(admin)
	require.Nil(t, vis.BuyerID)
	require.False(t, vis.OpenOnly)
}

func TestCanViewRfqMatrix(t *testing.T) {
	tests := []struct {
		name      string
		p         auth.Principal
		ownerID   int
		rfqStatus string
		want      bool
	}{
		{"buyer views own", auth.Principal{1, auth.RoleBuyer}, 1, "closed", true},
		{"buyer views other's", auth.Principal{1, auth.RoleBuyer}, 2, "open", false},
		{"vendor views open", auth.Principal{5, auth.RoleVendor}, 2, "open", true},
		{"vendor views in_progress", auth.Principal{5, auth.RoleVendor}, 2, "in_progress", false},
		{"vendor views closed", auth.Principal{5, auth.RoleVendor}, 2, "closed", false},
		{"admin views anything", auth.Principal{9, auth.RoleAdmin}, 2, "closed", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, auth.CanViewRfq(tt.p, tt.ownerID, tt.rfqStatus))
		})
	}
}

func TestCanMutateRfq(t *testing.T) {
	require.True(t, auth.CanMutateRfq(auth.Principal{1, auth.RoleBuyer}, 1))
	require.False(t, auth.CanMutateRfq(auth.Principal{1, auth.RoleBuyer}, 2))
	require.False(t, auth.CanMutateRfq(auth.Principal{1, auth.RoleVendor}, 1))
	require.False(t, auth.CanMutateRfq(auth.Principal{1, auth.RoleAdmin}, 1))
}

func TestQuotationPaths(t *testing.T) {
	require.True(t, auth.IsQuotationVendor(auth.Principal{4, auth.RoleVendor}, 4))
	require.False(t, auth.IsQuotationVendor(auth.Principal{4, auth.RoleVendor}, 5))
	require.False(t, auth.IsQuotationVendor(auth.Principal{4, auth.RoleBuyer}, 4))

	require.True(t, auth.IsQuotationBuyer(auth.Principal{1, auth.RoleBuyer}, 1))
	require.False(t, auth.IsQuotationBuyer(auth.Principal{1, auth.RoleBuyer}, 2))
	require.False(t, auth.IsQuotationBuyer(auth.Principal{1, auth.RoleAdmin}, 1))
}

func TestCanViewQuotation(t *testing.T) {
	require.True(t, auth.CanViewQuotation(auth.Principal{4, auth.RoleVendor}, 4, 1))
	require.False(t, auth.CanViewQuotation(auth.Principal{4, auth.RoleVendor}, 5, 1))
	require.True(t, auth.CanViewQuotation(auth.Principal{1, auth.RoleBuyer}, 4, 1))
	require.False(t, auth.CanViewQuotation(auth.Principal{2, auth.RoleBuyer}, 4, 1))
	require.True(t, auth.CanViewQuotation(auth.Principal{9, auth.RoleAdmin}, 4, 1))
}

func TestValidQuotationDecision(t *testing.T) {
	require.True(t, auth.ValidQuotationDecision("accepted"))
	require.True(t, auth.ValidQuotationDecision("rejected"))
	require.True(t, auth.ValidQuotationDecision("under_review"))
	require.False(t, auth.ValidQuotationDecision("submitted"))
	require.False(t, auth.ValidQuotationDecision("Contract_created"))
}

func TestContractUpdatePolicy(t *testing.T) {
	const buyerID, vendorID = 1, 4

	grant, ok := auth.ContractUpdatePolicy(auth.Principal{1, auth.RoleBuyer}, buyerID, vendorID)
	require.True(t, ok)
	require.True(t, grant.Dates)
	require.True(t, grant.Status)
	require.False(t, grant.ActiveOnly)

	_, ok = auth.ContractUpdatePolicy(auth.Principal{2, auth.RoleBuyer}, buyerID, vendorID)
	require.False(t, ok)

	grant, ok = auth.ContractUpdatePolicy(auth.Principal{4, auth.RoleVendor}, buyerID, vendorID)
	require.True(t, ok)
	require.False(t, grant.Dates)
	require.True(t, grant.Status)
	require.True(t, grant.ActiveOnly)

	// a vendor who is not the contract's vendor is always refused
	_, ok = auth.ContractUpdatePolicy(auth.Principal{5, auth.RoleVendor}, buyerID, vendorID)
	require.False(t, ok)

	grant, ok = auth.ContractUpdatePolicy(auth.Principal{9, auth.RoleAdmin}, buyerID, vendorID)
	require.True(t, ok)
	require.True(t, grant.Dates)
}
