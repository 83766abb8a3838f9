/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. Domain types carry no
  JSON tags; these types are the external contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

MONEY AND TIME:
  Money is a string with two decimals ("152.49"). Rates are decimal strings
  ("0.10"). Instants are RFC 3339; calendar dates are YYYY-MM-DD.

VALIDATION:
  Request types carry go-playground/validator tags, checked by decode() in
  handlers.go. Rules that need domain state stay in the domain packages.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/earnings-engine/adpartner"
	"github.com/warp/earnings-engine/awards"
	"github.com/warp/earnings-engine/commission"
	"github.com/warp/earnings-engine/delivery"
	"github.com/warp/earnings-engine/earnings"
	"github.com/warp/earnings-engine/generic"
	"github.com/warp/earnings-engine/rewards"
)

// =============================================================================
// COMMON
// =============================================================================

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// TransitionResponse reports a conditional state change.
type TransitionResponse struct {
	Applied       bool   `json:"applied"`
	CurrentStatus string `json:"current_status"`
	Error         string `json:"error,omitempty"`
}

// PageDTO wraps one page of a list.
type PageDTO[T any] struct {
	Items  []T `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func money(d decimal.Decimal) string { return generic.RoundMoney(d).StringFixed(generic.MoneyPlaces) }

func timeStr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := t.UTC().Format(time.RFC3339)
	return &s
}

func dateStr(t *time.Time) *string {
	if t == nil || t.IsZero() {
		return nil
	}
	s := generic.DateString(*t)
	return &s
}

// =============================================================================
// ORDERS AND EARNINGS
// =============================================================================

// LineItemRequest is one line of a paid order.
type LineItemRequest struct {
	ID        string          `json:"id"`
	Type      string          `json:"type" validate:"required,oneof=product service"`
	ProductID string          `json:"product_id" validate:"required_if=Type product"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity" validate:"gte=0"`
	UnitPrice decimal.Decimal `json:"unit_price"`
}

// OrderPaidRequest is the order-paid event from the commerce platform.
type OrderPaidRequest struct {
	OrderID     string            `json:"order_id" validate:"required"`
	TrainerID   string            `json:"trainer_id" validate:"required"`
	ClientID    string            `json:"client_id"`
	ClientName  string            `json:"client_name"`
	BundleID    string            `json:"bundle_id"`
	BundleTitle string            `json:"bundle_title"`
	LineItems   []LineItemRequest `json:"line_items" validate:"dive"`
	Total       decimal.Decimal   `json:"total"`
	PaidAt      *time.Time        `json:"paid_at"`
}

func (r OrderPaidRequest) toOrder() earnings.Order {
	o := earnings.Order{
		ID:          r.OrderID,
		TrainerID:   r.TrainerID,
		ClientID:    r.ClientID,
		ClientName:  r.ClientName,
		BundleID:    r.BundleID,
		BundleTitle: r.BundleTitle,
		Total:       r.Total,
	}
	if r.PaidAt != nil {
		o.PaidAt = *r.PaidAt
	}
	for _, li := range r.LineItems {
		o.LineItems = append(o.LineItems, earnings.LineItem{
			ID:        li.ID,
			Type:      earnings.LineType(li.Type),
			ProductID: li.ProductID,
			Name:      li.Name,
			Quantity:  li.Quantity,
			UnitPrice: li.UnitPrice,
		})
	}
	return o
}

// OrderPaidResponse is returned by POST /api/orders/paid.
type OrderPaidResponse struct {
	Earning      EarningDTO    `json:"earning"`
	Created      bool          `json:"created"`
	PointsEarned int64         `json:"points_earned"`
	Deliveries   []DeliveryDTO `json:"deliveries"`
}

type EarningLineDTO struct {
	ItemID      string `json:"item_id"`
	Type        string `json:"type"`
	ProductID   string `json:"product_id,omitempty"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unit_price"`
	Amount      string `json:"amount"`
	Rate        string `json:"rate"`
	Earnings    string `json:"earnings"`
	PromotionID string `json:"promotion_id,omitempty"`
}

type EarningDTO struct {
	OrderID           string           `json:"order_id"`
	TrainerID         string           `json:"trainer_id"`
	BundleID          string           `json:"bundle_id,omitempty"`
	BundleTitle       string           `json:"bundle_title,omitempty"`
	ClientID          string           `json:"client_id,omitempty"`
	ClientName        string           `json:"client_name,omitempty"`
	ProductCommission string           `json:"product_commission"`
	ServiceRevenue    string           `json:"service_revenue"`
	TotalEarnings     string           `json:"total_earnings"`
	OrderTotal        string           `json:"order_total"`
	Status            string           `json:"status"`
	CreatedAt         string           `json:"created_at"`
	Lines             []EarningLineDTO `json:"lines,omitempty"`
}

func toEarningDTO(r earnings.Record) EarningDTO {
	dto := EarningDTO{
		OrderID:           r.OrderID,
		TrainerID:         r.TrainerID,
		BundleID:          r.BundleID,
		BundleTitle:       r.BundleTitle,
		ClientID:          r.ClientID,
		ClientName:        r.ClientName,
		ProductCommission: money(r.ProductCommission),
		ServiceRevenue:    money(r.ServiceRevenue),
		TotalEarnings:     money(r.TotalEarnings),
		OrderTotal:        money(r.OrderTotal),
		Status:            string(r.Status),
		CreatedAt:         r.CreatedAt.UTC().Format(time.RFC3339),
	}
	for _, l := range r.Lines {
		dto.Lines = append(dto.Lines, EarningLineDTO{
			ItemID:      l.ItemID,
			Type:        string(l.Type),
			ProductID:   l.ProductID,
			Name:        l.Name,
			Quantity:    l.Quantity,
			UnitPrice:   money(l.UnitPrice),
			Amount:      money(l.Amount),
			Rate:        l.Rate.String(),
			Earnings:    money(l.Earnings),
			PromotionID: l.PromotionID,
		})
	}
	return dto
}

// AdvanceEarningRequest moves an earning record along pending -> confirmed -> paid.
type AdvanceEarningRequest struct {
	Status string `json:"status" validate:"required,oneof=confirmed paid"`
}

type PeriodDTO struct {
	Kind  string `json:"kind"`
	Start string `json:"start,omitempty"`
	End   string `json:"end"`
}

func toPeriodDTO(p generic.Period) PeriodDTO {
	dto := PeriodDTO{Kind: string(p.Kind), End: p.End.UTC().Format(time.RFC3339)}
	if !p.Start.IsZero() {
		dto.Start = p.Start.UTC().Format(time.RFC3339)
	}
	return dto
}

type TotalsDTO struct {
	TotalEarnings      string `json:"total_earnings"`
	ProductCommissions string `json:"product_commissions"`
	ServiceRevenue     string `json:"service_revenue"`
	OrderRevenue       string `json:"order_revenue"`
	BundlesSold        int    `json:"bundles_sold"`
}

func toTotalsDTO(t earnings.Totals) TotalsDTO {
	return TotalsDTO{
		TotalEarnings:      money(t.TotalEarnings),
		ProductCommissions: money(t.ProductCommissions),
		ServiceRevenue:     money(t.ServiceRevenue),
		OrderRevenue:       money(t.OrderRevenue),
		BundlesSold:        t.BundlesSold,
	}
}

// ChangeDTO holds percentage changes against the previous period.
type ChangeDTO struct {
	TotalEarnings      string `json:"total_earnings"`
	ProductCommissions string `json:"product_commissions"`
	ServiceRevenue     string `json:"service_revenue"`
	BundlesSold        string `json:"bundles_sold"`
}

type EarningsSummaryDTO struct {
	TrainerID      string     `json:"trainer_id"`
	Period         PeriodDTO  `json:"period"`
	Totals         TotalsDTO  `json:"totals"`
	PreviousPeriod *PeriodDTO `json:"previous_period,omitempty"`
	Previous       *TotalsDTO `json:"previous,omitempty"`
	Change         *ChangeDTO `json:"change,omitempty"`
}

func toSummaryDTO(s earnings.Summary) EarningsSummaryDTO {
	dto := EarningsSummaryDTO{
		TrainerID: s.TrainerID,
		Period:    toPeriodDTO(s.Period),
		Totals:    toTotalsDTO(s.Totals),
	}
	if s.PreviousPeriod != nil {
		pp := toPeriodDTO(*s.PreviousPeriod)
		dto.PreviousPeriod = &pp
	}
	if s.Previous != nil {
		pt := toTotalsDTO(*s.Previous)
		dto.Previous = &pt
	}
	if s.Change != nil {
		dto.Change = &ChangeDTO{
			TotalEarnings:      money(s.Change.TotalEarnings),
			ProductCommissions: money(s.Change.ProductCommissions),
			ServiceRevenue:     money(s.Change.ServiceRevenue),
			BundlesSold:        money(s.Change.BundlesSold),
		}
	}
	return dto
}

type ServiceShareDTO struct {
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
	Revenue  string `json:"revenue"`
	Percent  string `json:"percent"`
}

type ProductShareDTO struct {
	ProductID  string `json:"product_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	Sales      string `json:"sales"`
	Commission string `json:"commission"`
	Percent    string `json:"percent"`
}

type DayTotalsDTO struct {
	Date              string `json:"date"`
	ProductCommission string `json:"product_commission"`
	ServiceRevenue    string `json:"service_revenue"`
	Total             string `json:"total"`
}

type BreakdownDTO struct {
	TrainerID string            `json:"trainer_id"`
	Period    PeriodDTO         `json:"period"`
	ByService []ServiceShareDTO `json:"by_service"`
	ByProduct []ProductShareDTO `json:"by_product"`
	ByDay     []DayTotalsDTO    `json:"by_day"`
}

func toBreakdownDTO(b earnings.Breakdown) BreakdownDTO {
	dto := BreakdownDTO{
		TrainerID: b.TrainerID,
		Period:    toPeriodDTO(b.Period),
		ByService: []ServiceShareDTO{},
		ByProduct: []ProductShareDTO{},
		ByDay:     []DayTotalsDTO{},
	}
	for _, s := range b.ByService {
		dto.ByService = append(dto.ByService, ServiceShareDTO{
			Name: s.Name, Quantity: s.Quantity, Revenue: money(s.Revenue), Percent: money(s.Percent),
		})
	}
	for _, p := range b.ByProduct {
		dto.ByProduct = append(dto.ByProduct, ProductShareDTO{
			ProductID: p.ProductID, Name: p.Name, Quantity: p.Quantity,
			Sales: money(p.Sales), Commission: money(p.Commission), Percent: money(p.Percent),
		})
	}
	for _, d := range b.ByDay {
		dto.ByDay = append(dto.ByDay, DayTotalsDTO{
			Date: d.Date, ProductCommission: money(d.ProductCommission),
			ServiceRevenue: money(d.ServiceRevenue), Total: money(d.Total),
		})
	}
	return dto
}

// =============================================================================
// COMMISSION
// =============================================================================

type ResolutionDTO struct {
	ProductID           string   `json:"product_id"`
	Price               string   `json:"price"`
	BaseRate            string   `json:"base_rate"`
	BonusRate           string   `json:"bonus_rate"`
	TotalRate           string   `json:"total_rate"`
	EffectiveCommission string   `json:"effective_commission"`
	PromotionID         string   `json:"promotion_id,omitempty"`
	ConflictingPromos   []string `json:"conflicting_promotions,omitempty"`
}

func toResolutionDTO(r commission.Resolution) ResolutionDTO {
	dto := ResolutionDTO{
		ProductID:           r.ProductID,
		Price:               money(r.Price),
		BaseRate:            r.BaseRate.String(),
		BonusRate:           r.BonusRate.String(),
		TotalRate:           r.TotalRate.String(),
		EffectiveCommission: money(r.EffectiveCommission),
		PromotionID:         r.PromotionID,
	}
	if r.Conflict != nil {
		dto.ConflictingPromos = r.Conflict.PromotionIDs
	}
	return dto
}

type BundleProductRequest struct {
	ProductID string          `json:"product_id" validate:"required"`
	Name      string          `json:"name"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" validate:"gte=0"`
}

type BundleServiceRequest struct {
	Name      string          `json:"name" validate:"required"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity" validate:"gte=0"`
}

// BundleRequest prices a prospective bundle.
type BundleRequest struct {
	Products []BundleProductRequest `json:"products" validate:"dive"`
	Services []BundleServiceRequest `json:"services" validate:"dive"`
	AsOf     *time.Time             `json:"as_of"`
}

type BundleLineDTO struct {
	ProductID  string        `json:"product_id"`
	Name       string        `json:"name"`
	UnitPrice  string        `json:"unit_price"`
	Quantity   int           `json:"quantity"`
	Commission string        `json:"commission"`
	Resolution ResolutionDTO `json:"resolution"`
}

type BundleDTO struct {
	Products          []BundleLineDTO `json:"products"`
	ProductCommission string          `json:"product_commission"`
	ServiceRevenue    string          `json:"service_revenue"`
	TotalEarnings     string          `json:"total_earnings"`
}

func toBundleDTO(b commission.BundleTable) BundleDTO {
	dto := BundleDTO{
		Products:          []BundleLineDTO{},
		ProductCommission: money(b.ProductCommission),
		ServiceRevenue:    money(b.ServiceRevenue),
		TotalEarnings:     money(b.TotalEarnings),
	}
	for _, l := range b.Products {
		dto.Products = append(dto.Products, BundleLineDTO{
			ProductID:  l.ProductID,
			Name:       l.Name,
			UnitPrice:  money(l.UnitPrice),
			Quantity:   l.Quantity,
			Commission: money(l.Commission),
			Resolution: toResolutionDTO(l.Resolution),
		})
	}
	return dto
}

type BaseRateRequest struct {
	Rate decimal.Decimal `json:"rate"`
}

type PromotionRequest struct {
	ID          string          `json:"id"`
	ProductID   string          `json:"product_id" validate:"required"`
	BonusRate   decimal.Decimal `json:"bonus_rate"`
	ValidFrom   *time.Time      `json:"valid_from"`
	ValidUntil  *time.Time      `json:"valid_until"`
	Description string          `json:"description"`
}

type PromotionDTO struct {
	ID          string  `json:"id"`
	ProductID   string  `json:"product_id"`
	BonusRate   string  `json:"bonus_rate"`
	ValidFrom   *string `json:"valid_from,omitempty"`
	ValidUntil  *string `json:"valid_until,omitempty"`
	Description string  `json:"description,omitempty"`
}

func toPromotionDTO(p commission.Promotion) PromotionDTO {
	return PromotionDTO{
		ID:          p.ID,
		ProductID:   p.ProductID,
		BonusRate:   p.BonusRate.String(),
		ValidFrom:   timeStr(p.ValidFrom),
		ValidUntil:  timeStr(p.ValidUntil),
		Description: p.Description,
	}
}

// =============================================================================
// POINTS
// =============================================================================

type AccountDTO struct {
	TrainerID         string `json:"trainer_id"`
	TotalPoints       int64  `json:"total_points"`
	LifetimePoints    int64  `json:"lifetime_points"`
	CurrentTier       string `json:"current_tier"`
	YearToDatePoints  int64  `json:"ytd_points"`
	YearToDateRevenue string `json:"ytd_revenue"`
}

type PointsSummaryDTO struct {
	Account  AccountDTO       `json:"account"`
	NextTier rewards.NextTier `json:"next_tier"`
	Benefits rewards.Benefits `json:"benefits"`
}

func toPointsSummaryDTO(s rewards.Summary) PointsSummaryDTO {
	return PointsSummaryDTO{
		Account: AccountDTO{
			TrainerID:         s.Account.TrainerID,
			TotalPoints:       s.Account.TotalPoints,
			LifetimePoints:    s.Account.LifetimePoints,
			CurrentTier:       string(s.Account.CurrentTier),
			YearToDatePoints:  s.Account.YearToDatePoints,
			YearToDateRevenue: money(s.Account.YearToDateRevenue),
		},
		NextTier: s.NextTier,
		Benefits: s.Benefits,
	}
}

type PointTransactionDTO struct {
	ID              string `json:"id"`
	TransactionType string `json:"transaction_type"`
	Points          int64  `json:"points"`
	ReferenceType   string `json:"reference_type,omitempty"`
	ReferenceID     string `json:"reference_id,omitempty"`
	Description     string `json:"description,omitempty"`
	BalanceBefore   int64  `json:"balance_before"`
	BalanceAfter    int64  `json:"balance_after"`
	CreatedAt       string `json:"created_at"`
}

func toPointTransactionDTO(tx rewards.PointTransaction) PointTransactionDTO {
	return PointTransactionDTO{
		ID:              tx.ID,
		TransactionType: string(tx.TransactionType),
		Points:          tx.Points,
		ReferenceType:   tx.ReferenceType,
		ReferenceID:     tx.ReferenceID,
		Description:     tx.Description,
		BalanceBefore:   tx.BalanceBefore,
		BalanceAfter:    tx.BalanceAfter,
		CreatedAt:       tx.CreatedAt.UTC().Format(time.RFC3339),
	}
}

type RedeemRequest struct {
	Points         int64  `json:"points" validate:"gt=0"`
	ReferenceID    string `json:"reference_id"`
	Description    string `json:"description"`
	IdempotencyKey string `json:"idempotency_key"`
}

type RedeemResponse struct {
	Transaction PointTransactionDTO `json:"transaction"`
	Duplicate   bool                `json:"duplicate"`
	Balance     int64               `json:"balance"`
}

// =============================================================================
// DELIVERIES
// =============================================================================

type DeliveryDTO struct {
	ID             string  `json:"id"`
	OrderID        string  `json:"order_id"`
	OrderItemID    string  `json:"order_item_id"`
	TrainerID      string  `json:"trainer_id"`
	ClientID       string  `json:"client_id"`
	ProductID      string  `json:"product_id"`
	ProductName    string  `json:"product_name"`
	Quantity       int     `json:"quantity"`
	Status         string  `json:"status"`
	ScheduledDate  *string `json:"scheduled_date,omitempty"`
	DeliveredAt    *string `json:"delivered_at,omitempty"`
	ConfirmedAt    *string `json:"confirmed_at,omitempty"`
	DisputedAt     *string `json:"disputed_at,omitempty"`
	DeliveryMethod string  `json:"delivery_method,omitempty"`
	TrackingNumber string  `json:"tracking_number,omitempty"`
	DeliveryNotes  string  `json:"delivery_notes,omitempty"`
	ClientNotes    string  `json:"client_notes,omitempty"`
	IssueNotes     string  `json:"issue_notes,omitempty"`

	ResolvedAt      *string `json:"resolved_at,omitempty"`
	ResolvedBy      string  `json:"resolved_by,omitempty"`
	ResolutionType  string  `json:"resolution_type,omitempty"`
	ResolutionNotes string  `json:"resolution_notes,omitempty"`

	RescheduleStatus   string  `json:"reschedule_status"`
	ProposedDate       *string `json:"proposed_date,omitempty"`
	RescheduleReason   string  `json:"reschedule_reason,omitempty"`
	RescheduleResponse string  `json:"reschedule_response,omitempty"`

	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func toDeliveryDTO(d delivery.Delivery) DeliveryDTO {
	return DeliveryDTO{
		ID:                 d.ID,
		OrderID:            d.OrderID,
		OrderItemID:        d.OrderItemID,
		TrainerID:          d.TrainerID,
		ClientID:           d.ClientID,
		ProductID:          d.ProductID,
		ProductName:        d.ProductName,
		Quantity:           d.Quantity,
		Status:             string(d.Status),
		ScheduledDate:      dateStr(d.ScheduledDate),
		DeliveredAt:        timeStr(d.DeliveredAt),
		ConfirmedAt:        timeStr(d.ConfirmedAt),
		DisputedAt:         timeStr(d.DisputedAt),
		DeliveryMethod:     d.DeliveryMethod,
		TrackingNumber:     d.TrackingNumber,
		DeliveryNotes:      d.DeliveryNotes,
		ClientNotes:        d.ClientNotes,
		IssueNotes:         d.IssueNotes,
		ResolvedAt:         timeStr(d.ResolvedAt),
		ResolvedBy:         d.ResolvedBy,
		ResolutionType:     string(d.ResolutionType),
		ResolutionNotes:    d.ResolutionNotes,
		RescheduleStatus:   string(d.RescheduleStatus),
		ProposedDate:       dateStr(d.ProposedDate),
		RescheduleReason:   d.RescheduleReason,
		RescheduleResponse: d.RescheduleResponse,
		CreatedAt:          d.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:          d.UpdatedAt.UTC().Format(time.RFC3339),
	}
}

func toDeliveryDTOs(ds []delivery.Delivery) []DeliveryDTO {
	out := make([]DeliveryDTO, 0, len(ds))
	for _, d := range ds {
		out = append(out, toDeliveryDTO(d))
	}
	return out
}

type DeliveryStatsDTO struct {
	Total              int            `json:"total"`
	ByStatus           map[string]int `json:"by_status"`
	PendingReschedules int            `json:"pending_reschedules"`
	CompletionRate     string         `json:"completion_rate"`
}

func toDeliveryStatsDTO(s delivery.Stats) DeliveryStatsDTO {
	dto := DeliveryStatsDTO{
		Total:              s.Total,
		ByStatus:           make(map[string]int, len(s.ByStatus)),
		PendingReschedules: s.PendingReschedules,
		CompletionRate:     money(s.CompletionRate),
	}
	for status, n := range s.ByStatus {
		dto.ByStatus[string(status)] = n
	}
	return dto
}

type MarkDeliveredRequest struct {
	Notes          string `json:"notes"`
	Method         string `json:"method"`
	TrackingNumber string `json:"tracking_number"`
}

type ConfirmReceiptRequest struct {
	Notes string `json:"notes"`
}

type ReportIssueRequest struct {
	Notes string `json:"notes" validate:"required,min=10"`
}

type ResolveDisputeRequest struct {
	ResolutionType string `json:"resolution_type" validate:"required,oneof=refund replacement redeliver no_action"`
	Notes          string `json:"notes"`
}

type RescheduleRequest struct {
	ProposedDate string `json:"proposed_date" validate:"required,datetime=2006-01-02"`
	Reason       string `json:"reason" validate:"required"`
}

type RejectRescheduleRequest struct {
	Note string `json:"note"`
}

// =============================================================================
// AD PARTNERSHIPS
// =============================================================================

type CreatePartnershipRequest struct {
	TrainerID   string `json:"trainer_id" validate:"required"`
	BusinessID  string `json:"business_id" validate:"required"`
	PackageTier string `json:"package_tier" validate:"required,oneof=bronze silver gold platinum"`
	StartDate   string `json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	EndDate     string `json:"end_date" validate:"omitempty,datetime=2006-01-02"`
}

type PartnershipDTO struct {
	ID                    string  `json:"id"`
	TrainerID             string  `json:"trainer_id"`
	BusinessID            string  `json:"business_id"`
	PackageTier           string  `json:"package_tier"`
	MonthlyFee            string  `json:"monthly_fee"`
	TrainerCommissionRate string  `json:"trainer_commission_rate"`
	BonusPointsAwarded    int64   `json:"bonus_points_awarded"`
	Status                string  `json:"status"`
	StartDate             string  `json:"start_date"`
	EndDate               string  `json:"end_date"`
	RenewalDate           string  `json:"renewal_date"`
	AutoRenew             bool    `json:"auto_renew"`
	ApprovedBy            string  `json:"approved_by,omitempty"`
	ApprovedAt            *string `json:"approved_at,omitempty"`
	CancelledAt           *string `json:"cancelled_at,omitempty"`
}

func toPartnershipDTO(p adpartner.Partnership) PartnershipDTO {
	return PartnershipDTO{
		ID:                    p.ID,
		TrainerID:             p.TrainerID,
		BusinessID:            p.BusinessID,
		PackageTier:           string(p.PackageTier),
		MonthlyFee:            money(p.MonthlyFee),
		TrainerCommissionRate: p.TrainerCommissionRate.String(),
		BonusPointsAwarded:    p.BonusPointsAwarded,
		Status:                string(p.Status),
		StartDate:             generic.DateString(p.StartDate),
		EndDate:               generic.DateString(p.EndDate),
		RenewalDate:           generic.DateString(p.RenewalDate),
		AutoRenew:             p.AutoRenew,
		ApprovedBy:            p.ApprovedBy,
		ApprovedAt:            timeStr(p.ApprovedAt),
		CancelledAt:           timeStr(p.CancelledAt),
	}
}

func toPartnershipDTOs(ps []adpartner.Partnership) []PartnershipDTO {
	out := make([]PartnershipDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, toPartnershipDTO(p))
	}
	return out
}

type AdEarningDTO struct {
	ID               string `json:"id"`
	PartnershipID    string `json:"partnership_id"`
	BusinessID       string `json:"business_id"`
	PeriodStart      string `json:"period_start"`
	PeriodEnd        string `json:"period_end"`
	MonthlyFee       string `json:"monthly_fee"`
	CommissionRate   string `json:"commission_rate"`
	CommissionEarned string `json:"commission_earned"`
	BonusPoints      int64  `json:"bonus_points"`
	Status           string `json:"status"`
}

type AdSummaryDTO struct {
	TrainerID          string         `json:"trainer_id"`
	TotalEarned        string         `json:"total_earned"`
	TotalBonusPoints   int64          `json:"total_bonus_points"`
	ActivePartnerships int            `json:"active_partnerships"`
	PendingEarnings    string         `json:"pending_earnings"`
	Earnings           []AdEarningDTO `json:"earnings"`
}

func toAdSummaryDTO(s adpartner.Summary) AdSummaryDTO {
	dto := AdSummaryDTO{
		TrainerID:          s.TrainerID,
		TotalEarned:        money(s.TotalEarned),
		TotalBonusPoints:   s.TotalBonusPoints,
		ActivePartnerships: s.ActivePartnerships,
		PendingEarnings:    money(s.PendingEarnings),
		Earnings:           []AdEarningDTO{},
	}
	for _, e := range s.Earnings {
		dto.Earnings = append(dto.Earnings, AdEarningDTO{
			ID:               e.ID,
			PartnershipID:    e.PartnershipID,
			BusinessID:       e.BusinessID,
			PeriodStart:      generic.DateString(e.PeriodStart),
			PeriodEnd:        generic.DateString(e.PeriodEnd),
			MonthlyFee:       money(e.MonthlyFee),
			CommissionRate:   e.CommissionRate.String(),
			CommissionEarned: money(e.CommissionEarned),
			BonusPoints:      e.BonusPoints,
			Status:           string(e.Status),
		})
	}
	return dto
}

// =============================================================================
// AWARDS
// =============================================================================

type ProcessAwardsRequest struct {
	Year  int `json:"year" validate:"required,gte=2000,lte=9999"`
	Month int `json:"month" validate:"required,gte=1,lte=12"`
}

type AwardDTO struct {
	ID        string `json:"id"`
	TrainerID string `json:"trainer_id"`
	Type      string `json:"award_type"`
	Title     string `json:"title"`
	Points    int64  `json:"points"`
	Year      int    `json:"year"`
	Month     int    `json:"month"`
	Milestone int64  `json:"milestone,omitempty"`
	CreatedAt string `json:"created_at"`
}

func toAwardDTOs(as []awards.Award) []AwardDTO {
	out := make([]AwardDTO, 0, len(as))
	for _, a := range as {
		out = append(out, AwardDTO{
			ID:        a.ID,
			TrainerID: a.TrainerID,
			Type:      string(a.Type),
			Title:     a.Title,
			Points:    a.Points,
			Year:      a.Year,
			Month:     int(a.Month),
			Milestone: a.Milestone,
			CreatedAt: a.CreatedAt.UTC().Format(time.RFC3339),
		})
	}
	return out
}

type AwardRunDTO struct {
	ID            string  `json:"id"`
	Year          int     `json:"year"`
	Month         int     `json:"month"`
	Status        string  `json:"status"`
	AwardsGranted int     `json:"awards_granted"`
	PointsGranted int64   `json:"points_granted"`
	Error         string  `json:"error,omitempty"`
	StartedAt     string  `json:"started_at"`
	CompletedAt   *string `json:"completed_at,omitempty"`
}

func toAwardRunDTO(r awards.Run) AwardRunDTO {
	return AwardRunDTO{
		ID:            r.ID,
		Year:          r.Year,
		Month:         int(r.Month),
		Status:        string(r.Status),
		AwardsGranted: r.AwardsGranted,
		PointsGranted: r.PointsGranted,
		Error:         r.Error,
		StartedAt:     r.StartedAt.UTC().Format(time.RFC3339),
		CompletedAt:   timeStr(r.CompletedAt),
	}
}

type ProcessAwardsResponse struct {
	Run         AwardRunDTO `json:"run"`
	Granted     []AwardDTO  `json:"granted"`
	AlreadyHeld int         `json:"already_held"`
}

type AwardsSummaryDTO struct {
	Year    int            `json:"year"`
	Month   int            `json:"month"`
	Awards  []AwardDTO     `json:"awards"`
	ByType  map[string]int `json:"by_type"`
	Points  int64          `json:"points"`
	LastRun *AwardRunDTO   `json:"last_run,omitempty"`
}

func toAwardsSummaryDTO(s awards.Summary) AwardsSummaryDTO {
	dto := AwardsSummaryDTO{
		Year:   s.Year,
		Month:  int(s.Month),
		Awards: toAwardDTOs(s.Awards),
		ByType: make(map[string]int, len(s.ByType)),
		Points: s.Points,
	}
	for t, n := range s.ByType {
		dto.ByType[string(t)] = n
	}
	if s.LastRun != nil {
		run := toAwardRunDTO(*s.LastRun)
		dto.LastRun = &run
	}
	return dto
}

// =============================================================================
// DIRECTORY AND SCENARIOS
// =============================================================================

type UserRequest struct {
	ID    string `json:"id" validate:"required"`
	Name  string `json:"name" validate:"required"`
	Role  string `json:"role" validate:"required,oneof=trainer client manager coordinator admin"`
	Phone string `json:"phone" validate:"omitempty,e164"`
	Email string `json:"email" validate:"omitempty,email"`
}

type ProductRequest struct {
	ID                      string          `json:"id" validate:"required"`
	Name                    string          `json:"name" validate:"required"`
	Price                   decimal.Decimal `json:"price"`
	RequiresTrainerDelivery bool            `json:"requires_trainer_delivery"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}
