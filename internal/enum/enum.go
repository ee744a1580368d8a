package enum

// ── Group A: State machines ──

const (
	OrderStatusPendingPayment = "pending_payment"
	OrderStatusPending        = "pending"
	OrderStatusPreparing      = "preparing"
	OrderStatusReady          = "ready"
	OrderStatusCompleted      = "completed"
	OrderStatusCancelled      = "cancelled"
	OrderStatusFailed         = "failed"
	OrderStatusExpired        = "expired"
)

// Payment status as recorded on the order document.
const (
	PaymentStatusPending = "pending"
	PaymentStatusPaid    = "paid"
	PaymentStatusFailed  = "failed"
	PaymentStatusExpired = "expired"
)

// Status of a row in the payments collection.
const (
	PaymentRecordPending   = "pending"
	PaymentRecordSucceeded = "succeeded"
	PaymentRecordFailed    = "failed"
)

// ── Group B: Roles and sources ──

const (
	UserRoleAdmin    = "admin"
	UserRoleCashier  = "cashier"
	UserRoleKitchen  = "kitchen"
	UserRoleCustomer = "customer"
)

const (
	OrderSourceCustomer = "customer"
	OrderSourceCashier  = "cashier"
)

// ── Group C: Configurable labels ──

const (
	PaymentMethodCash  = "cash"
	PaymentMethodGCash = "gcash"
)

const (
	DiscountTypePercentage = "percentage"
	DiscountTypeFixed      = "fixed"
)

const (
	PaymentFlowQRPh     = "qrph"
	PaymentFlowCheckout = "checkout"
)

// Settings keys.
const (
	SettingPaymentPassword = "payment"
)

// StaffRoles are the roles allowed to mutate order status.
var StaffRoles = []string{UserRoleAdmin, UserRoleCashier, UserRoleKitchen}
