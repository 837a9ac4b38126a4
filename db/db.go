package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"procurement/internal/scoring"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrContractExists is returned when a contract already references the
// quotation: contracts are one-to-one with accepted quotations.
var ErrContractExists = errors.New("a contract already exists for this quotation")

type Storage struct {
	db *sqlx.DB
	qb sq.StatementBuilderType
}

func NewStorage(db *sqlx.DB) *Storage {
	return &Storage{
		db: db,
		qb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// User (external identity, referenced only)
type User struct {
	ID          int       `db:"id" json:"id"`
	Email       string    `db:"email" json:"email"`
	FullName    string    `db:"full_name" json:"fullName"`
	CompanyName string    `db:"company_name" json:"companyName"`
	Role        string    `db:"role" json:"role"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

func (s *Storage) GetUser(ctx context.Context, id int) (*User, error) {
	u := &User{}
	query := `SELECT * FROM users WHERE id=$1`
	err := s.db.GetContext(ctx, u, query, id)
	return u, err
}

func (s *Storage) GetVendorEmails(ctx context.Context) ([]string, error) {
	emails := []string{}
	query := `SELECT email FROM users WHERE role='vendor'`
	err := s.db.SelectContext(ctx, &emails, query)
	return emails, err
}

// Attachment is a stored file reference carried by RFQs, quotations and
// contracts. FilePath is an opaque retrievable location.
type Attachment struct {
	FileName string `db:"file_name" json:"fileName"`
	FilePath string `db:"file_path" json:"filePath"`
}

// Rfq (procurement posting, RFQ or RFP)
type Rfq struct {
	ID          int          `db:"id" json:"id"`
	Title       string       `db:"title" json:"title"`
	Description string       `db:"description" json:"description"`
	RequestType string       `db:"request_type" json:"requestType"`
	Budget      float64      `db:"budget" json:"budget"`
	Deadline    time.Time    `db:"deadline" json:"deadline"`
	Category    string       `db:"category" json:"category"`
	Status      string       `db:"status" json:"status"`
	BuyerID     int          `db:"buyer_id" json:"buyerId"`
	Attachments []Attachment `db:"-" json:"attachments"`
	CreatedAt   time.Time    `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time    `db:"updated_at" json:"-"`
}

// CreateRfq inserts the posting and its attachments in one transaction so a
// failed attachment insert never leaves a half-persisted RFQ.
func (s *Storage) CreateRfq(ctx context.Context, r *Rfq) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO rfqs
            (title, description, request_type, budget, deadline, category, status, buyer_id)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING id, created_at, updated_at`
	err = tx.QueryRowContext(ctx, query,
		r.Title, r.Description, r.RequestType, r.Budget, r.Deadline, r.Category, r.Status, r.BuyerID).
		Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return err
	}
	for _, a := range r.Attachments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO rfq_attachments (rfq_id, file_name, file_path) VALUES ($1, $2, $3)`,
			r.ID, a.FileName, a.FilePath); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Storage) GetRfq(ctx context.Context, id int) (*Rfq, error) {
	r := &Rfq{}
	query := `SELECT * FROM rfqs WHERE id=$1`
	if err := s.db.GetContext(ctx, r, query, id); err != nil {
		return nil, err
	}
	if err := s.loadRfqAttachments(ctx, r); err != nil {
		return nil, err
	}
	return r, nil
}

func (s *Storage) UpdateRfq(ctx context.Context, r *Rfq) error {
	query := `
        UPDATE rfqs
        SET title=$1, description=$2, budget=$3, deadline=$4, category=$5, status=$6, updated_at=NOW()
        WHERE id=$7`
	_, err := s.db.ExecContext(ctx, query,
		r.Title, r.Description, r.Budget, r.Deadline, r.Category, r.Status, r.ID)
	return err
}

func (s *Storage) DeleteRfq(ctx context.Context, id int) error {
	query := `DELETE FROM rfqs WHERE id=$1`
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}

// RfqFilter narrows ListRfqs. BuyerID and OpenOnly implement the role
// visibility rules; Category and Status are caller-supplied query filters.
type RfqFilter struct {
	BuyerID  *int
	OpenOnly bool
	Category string
	Status   string
}

func (s *Storage) ListRfqs(ctx context.Context, f RfqFilter) ([]Rfq, error) {
	q := s.qb.Select("*").From("rfqs").OrderBy("created_at DESC")
	if f.BuyerID != nil {
		q = q.Where(sq.Eq{"buyer_id": *f.BuyerID})
	}
	if f.OpenOnly {
		q = q.Where(sq.Eq{"status": "open"})
	}
	if f.Category != "" {
		q = q.Where(sq.Eq{"category": f.Category})
	}
	if f.Status != "" {
		q = q.Where(sq.Eq{"status": f.Status})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build rfq query: %w", err)
	}

	rfqs := []Rfq{}
	if err := s.db.SelectContext(ctx, &rfqs, query, args...); err != nil {
		return nil, err
	}
	for i := range rfqs {
		if err := s.loadRfqAttachments(ctx, &rfqs[i]); err != nil {
			return nil, err
		}
	}
	return rfqs, nil
}

func (s *Storage) AddRfqAttachments(ctx context.Context, rfqID int, atts []Attachment) error {
	query := `INSERT INTO rfq_attachments (rfq_id, file_name, file_path) VALUES ($1, $2, $3)`
	for _, a := range atts {
		if _, err := s.db.ExecContext(ctx, query, rfqID, a.FileName, a.FilePath); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) loadRfqAttachments(ctx context.Context, r *Rfq) error {
	r.Attachments = []Attachment{}
	query := `SELECT file_name, file_path FROM rfq_attachments WHERE rfq_id=$1 ORDER BY id ASC`
	return s.db.SelectContext(ctx, &r.Attachments, query, r.ID)
}

// Quotation (vendor bid against an RFQ)
type Quotation struct {
	ID               int                `db:"id" json:"id"`
	RfqID            int                `db:"rfq_id" json:"rfqId"`
	VendorID         int                `db:"vendor_id" json:"vendorId"`
	Price            float64            `db:"price" json:"price"`
	DeliveryTimeDays int                `db:"delivery_time_days" json:"deliveryTimeDays"`
	Compliance       scoring.Compliance `db:"compliance" json:"compliance"`
	VendorScore      *float64           `db:"vendor_score" json:"vendorScore"`
	Status           string             `db:"status" json:"status"`
	Attachments      []Attachment       `db:"-" json:"attachments"`
	CreatedAt        time.Time          `db:"created_at" json:"createdAt"`
	UpdatedAt        time.Time          `db:"updated_at" json:"-"`
}

// CreateQuotation inserts the bid and its attachments in one transaction,
// mirroring CreateRfq.
func (s *Storage) CreateQuotation(ctx context.Context, q *Quotation) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO quotations
            (rfq_id, vendor_id, price, delivery_time_days, compliance, vendor_score, status)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7)
        RETURNING id, created_at, updated_at`
	err = tx.QueryRowContext(ctx, query,
		q.RfqID, q.VendorID, q.Price, q.DeliveryTimeDays, q.Compliance, q.VendorScore, q.Status).
		Scan(&q.ID, &q.CreatedAt, &q.UpdatedAt)
	if err != nil {
		return err
	}
	for _, a := range q.Attachments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO quotation_attachments (quotation_id, file_name, file_path) VALUES ($1, $2, $3)`,
			q.ID, a.FileName, a.FilePath); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *Storage) GetQuotation(ctx context.Context, id int) (*Quotation, error) {
	q := &Quotation{}
	query := `SELECT * FROM quotations WHERE id=$1`
	if err := s.db.GetContext(ctx, q, query, id); err != nil {
		return nil, err
	}
	if err := s.loadQuotationAttachments(ctx, q); err != nil {
		return nil, err
	}
	return q, nil
}

func (s *Storage) UpdateQuotation(ctx context.Context, q *Quotation) error {
	query := `
        UPDATE quotations
        SET price=$1, delivery_time_days=$2, compliance=$3, vendor_score=$4, status=$5, updated_at=NOW()
        WHERE id=$6`
	_, err := s.db.ExecContext(ctx, query,
		q.Price, q.DeliveryTimeDays, q.Compliance, q.VendorScore, q.Status, q.ID)
	return err
}

func (s *Storage) DeleteQuotation(ctx context.Context, id int) error {
	query := `DELETE FROM quotations WHERE id=$1`
	_, err := s.db.ExecContext(ctx, query, id)
	return err
}

func (s *Storage) CountQuotationsForRfq(ctx context.Context, rfqID int) (int, error) {
	var count int
	query := `SELECT COUNT(1) FROM quotations WHERE rfq_id=$1`
	err := s.db.GetContext(ctx, &count, query, rfqID)
	return count, err
}

// QuotationFilter narrows ListQuotations. VendorID restricts to a vendor's
// own bids; BuyerID restricts to bids against RFQs the buyer owns.
type QuotationFilter struct {
	VendorID     *int
	BuyerID      *int
	RfqID        *int
	OrderByScore bool
}

func (s *Storage) ListQuotations(ctx context.Context, f QuotationFilter) ([]Quotation, error) {
	q := s.qb.Select("q.*").From("quotations q")
	if f.BuyerID != nil {
		q = q.Join("rfqs r ON q.rfq_id = r.id").Where(sq.Eq{"r.buyer_id": *f.BuyerID})
	}
	if f.VendorID != nil {
		q = q.Where(sq.Eq{"q.vendor_id": *f.VendorID})
	}
	if f.RfqID != nil {
		q = q.Where(sq.Eq{"q.rfq_id": *f.RfqID})
	}
	if f.OrderByScore {
		q = q.OrderBy("q.vendor_score DESC NULLS LAST")
	} else {
		q = q.OrderBy("q.created_at DESC")
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build quotation query: %w", err)
	}

	quotations := []Quotation{}
	if err := s.db.SelectContext(ctx, &quotations, query, args...); err != nil {
		return nil, err
	}
	for i := range quotations {
		if err := s.loadQuotationAttachments(ctx, &quotations[i]); err != nil {
			return nil, err
		}
	}
	return quotations, nil
}

func (s *Storage) AddQuotationAttachments(ctx context.Context, quotationID int, atts []Attachment) error {
	query := `INSERT INTO quotation_attachments (quotation_id, file_name, file_path) VALUES ($1, $2, $3)`
	for _, a := range atts {
		if _, err := s.db.ExecContext(ctx, query, quotationID, a.FileName, a.FilePath); err != nil {
			return err
		}
	}
	return nil
}

func (s *Storage) loadQuotationAttachments(ctx context.Context, q *Quotation) error {
	q.Attachments = []Attachment{}
	query := `SELECT file_name, file_path FROM quotation_attachments WHERE quotation_id=$1 ORDER BY id ASC`
	return s.db.SelectContext(ctx, &q.Attachments, query, q.ID)
}

// AcceptQuotation marks the quotation accepted and forces its parent RFQ to
// in_progress in a single transaction, so no state is observable where the
// quotation is accepted but the RFQ still open.
func (s *Storage) AcceptQuotation(ctx context.Context, quotationID, rfqID int) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`UPDATE quotations SET status='accepted', updated_at=NOW() WHERE id=$1`, quotationID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE rfqs SET status='in_progress', updated_at=NOW() WHERE id=$1`, rfqID); err != nil {
		return err
	}
	return tx.Commit()
}

// ContractWarning is one finding from the contract audit.
type ContractWarning struct {
	WarningType string `db:"warning_type" json:"warningType"`
	Description string `db:"description" json:"description"`
	Severity    string `db:"severity" json:"severity"`
}

// Contract (terminal artifact of an accepted quotation)
type Contract struct {
	ID          int               `db:"id" json:"id"`
	RfqID       int               `db:"rfq_id" json:"rfqId"`
	VendorID    int               `db:"vendor_id" json:"vendorId"`
	BuyerID     int               `db:"buyer_id" json:"buyerId"`
	QuotationID int               `db:"quotation_id" json:"quotationId"`
	Content     string            `db:"content" json:"content"`
	FileName    *string           `db:"file_name" json:"fileName,omitempty"`
	FilePath    *string           `db:"file_path" json:"filePath,omitempty"`
	StartDate   time.Time         `db:"start_date" json:"startDate"`
	EndDate     time.Time         `db:"end_date" json:"endDate"`
	Status      string            `db:"status" json:"status"`
	AuditStatus string            `db:"audit_status" json:"auditStatus"`
	AuditReport string            `db:"audit_report" json:"auditReport"`
	Warnings    []ContractWarning `db:"-" json:"auditWarnings"`
	CreatedAt   time.Time         `db:"created_at" json:"createdAt"`
	UpdatedAt   time.Time         `db:"updated_at" json:"-"`
}

// CreateContract stamps the source quotation Contract_created and inserts the
// contract with its audit warnings in one transaction. The unique index on
// quotation_id rejects a second contract for the same quotation.
func (s *Storage) CreateContract(ctx context.Context, c *Contract) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	query := `
        INSERT INTO contracts
            (rfq_id, vendor_id, buyer_id, quotation_id, content, file_name, file_path,
             start_date, end_date, status, audit_status, audit_report)
        VALUES
            ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
        RETURNING id, created_at, updated_at`
	err = tx.QueryRowContext(ctx, query,
		c.RfqID, c.VendorID, c.BuyerID, c.QuotationID, c.Content, c.FileName, c.FilePath,
		c.StartDate, c.EndDate, c.Status, c.AuditStatus, c.AuditReport).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return ErrContractExists
		}
		return err
	}

	for i, w := range c.Warnings {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO contract_warnings (contract_id, warning_type, description, severity, position)
             VALUES ($1, $2, $3, $4, $5)`,
			c.ID, w.WarningType, w.Description, w.Severity, i)
		if err != nil {
			return err
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE quotations SET status='Contract_created', updated_at=NOW() WHERE id=$1`, c.QuotationID); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) GetContract(ctx context.Context, id int) (*Contract, error) {
	c := &Contract{}
	query := `SELECT * FROM contracts WHERE id=$1`
	if err := s.db.GetContext(ctx, c, query, id); err != nil {
		return nil, err
	}
	if err := s.loadContractWarnings(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Storage) UpdateContract(ctx context.Context, c *Contract) error {
	query := `
        UPDATE contracts
        SET start_date=$1, end_date=$2, status=$3, updated_at=NOW()
        WHERE id=$4`
	_, err := s.db.ExecContext(ctx, query, c.StartDate, c.EndDate, c.Status, c.ID)
	return err
}

// ContractFilter narrows ListContracts by party.
type ContractFilter struct {
	BuyerID  *int
	VendorID *int
}

func (s *Storage) ListContracts(ctx context.Context, f ContractFilter) ([]Contract, error) {
	q := s.qb.Select("*").From("contracts").OrderBy("created_at DESC")
	if f.BuyerID != nil {
		q = q.Where(sq.Eq{"buyer_id": *f.BuyerID})
	}
	if f.VendorID != nil {
		q = q.Where(sq.Eq{"vendor_id": *f.VendorID})
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build contract query: %w", err)
	}

	contracts := []Contract{}
	if err := s.db.SelectContext(ctx, &contracts, query, args...); err != nil {
		return nil, err
	}
	for i := range contracts {
		if err := s.loadContractWarnings(ctx, &contracts[i]); err != nil {
			return nil, err
		}
	}
	return contracts, nil
}

func (s *Storage) loadContractWarnings(ctx context.Context, c *Contract) error {
	c.Warnings = []ContractWarning{}
	query := `SELECT warning_type, description, severity FROM contract_warnings WHERE contract_id=$1 ORDER BY position ASC`
	return s.db.SelectContext(ctx, &c.Warnings, query, c.ID)
}
