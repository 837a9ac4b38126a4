package handlers

import (
	"context"

	"procurement/db"
)

type StorageInterface interface {
	GetUser(ctx context.Context, id int) (*db.User, error)
	GetVendorEmails(ctx context.Context) ([]string, error)

	CreateRfq(ctx context.Context, rfq *db.Rfq) error
	GetRfq(ctx context.Context, rfqID int) (*db.Rfq, error)
	UpdateRfq(ctx context.Context, rfq *db.Rfq) error
	DeleteRfq(ctx context.Context, rfqID int) error
	ListRfqs(ctx context.Context, filter db.RfqFilter) ([]db.Rfq, error)
	AddRfqAttachments(ctx context.Context, rfqID int, atts []db.Attachment) error

	CreateQuotation(ctx context.Context, quotation *db.Quotation) error
	GetQuotation(ctx context.Context, quotationID int) (*db.Quotation, error)
	UpdateQuotation(ctx context.Context, quotation *db.Quotation) error
	DeleteQuotation(ctx context.Context, quotationID int) error
	ListQuotations(ctx context.Context, filter db.QuotationFilter) ([]db.Quotation, error)
	AddQuotationAttachments(ctx context.Context, quotationID int, atts []db.Attachment) error
	CountQuotationsForRfq(ctx context.Context, rfqID int) (int, error)
	AcceptQuotation(ctx context.Context, quotationID, rfqID int) error

	CreateContract(ctx context.Context, contract *db.Contract) error
	GetContract(ctx context.Context, contractID int) (*db.Contract, error)
	UpdateContract(ctx context.Context, contract *db.Contract) error
	ListContracts(ctx context.Context, filter db.ContractFilter) ([]db.Contract, error)
}
