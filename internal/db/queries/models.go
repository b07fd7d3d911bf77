// internal/db/queries/models.go
package queries

import "time"

const (
	RoleMember = "member"
	RoleCoach  = "coach"
	RoleAdmin  = "admin"

	StatusActive   = "active"
	StatusInactive = "inactive"

	PurchaseStatusPendingPayment = "pending_payment"
	PurchaseStatusPendingReview  = "pending_review"
	PurchaseStatusApproved       = "approved"
	PurchaseStatusRejected       = "rejected"
	PurchaseStatusCancelled      = "cancelled"

	ClassStatusScheduled = "scheduled"
	ClassStatusCancelled = "cancelled"

	BookingStatusBooked    = "booked"
	BookingStatusCancelled = "cancelled"
	BookingStatusAttended  = "attended"
	BookingStatusNoShow    = "no_show"

	CreditKindGrant   = "grant"
	CreditKindConsume = "consume"
	CreditKindRefund  = "refund"
	CreditKindExpire  = "expire"
	CreditKindAdjust  = "adjust"

	CheckinMethodQR     = "qr"
	CheckinMethodManual = "manual"
)

type Location struct {
	ID                      int64     `json:"id"`
	Name                    string    `json:"name"`
	Address                 string    `json:"address"`
	Timezone                string    `json:"timezone"`
	CancellationCutoffHours int64     `json:"cancellationCutoffHours"`
	Status                  string    `json:"status"`
	CreatedAt               time.Time `json:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

type User struct {
	ID             int64     `json:"id"`
	Email          string    `json:"email"`
	Phone          *string   `json:"phone,omitempty"`
	FirstName      string    `json:"firstName"`
	LastName       string    `json:"lastName"`
	Role           string    `json:"role"`
	PasswordHash   string    `json:"-"`
	Status         string    `json:"status"`
	HomeLocationID *int64    `json:"homeLocationId,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt"`
}

type Child struct {
	ID           int64      `json:"id"`
	ParentUserID int64      `json:"parentUserId"`
	FirstName    string     `json:"firstName"`
	LastName     string     `json:"lastName"`
	BirthDate    *string    `json:"birthDate,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ArchivedAt   *time.Time `json:"archivedAt,omitempty"`
}

type ClassType struct {
	ID                     int64     `json:"id"`
	Name                   string    `json:"name"`
	Description            string    `json:"description"`
	DefaultDurationMinutes int64     `json:"defaultDurationMinutes"`
	Color                  string    `json:"color"`
	Status                 string    `json:"status"`
	CreatedAt              time.Time `json:"createdAt"`
}

type Package struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Credits     int64     `json:"credits"`
	ValidDays   int64     `json:"validDays"`
	PriceCents  int64     `json:"priceCents"`
	LocationID  *int64    `json:"locationId,omitempty"`
	Status      string    `json:"status"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

type PackagePrice struct {
	ID         int64     `json:"id"`
	PackageID  int64     `json:"packageId"`
	LocationID *int64    `json:"locationId,omitempty"`
	UserID     *int64    `json:"userId,omitempty"`
	PriceCents int64     `json:"priceCents"`
	CreatedAt  time.Time `json:"createdAt"`
}

type Purchase struct {
	ID              int64      `json:"id"`
	Reference       string     `json:"reference"`
	UserID          int64      `json:"userId"`
	PackageID       int64      `json:"packageId"`
	LocationID      *int64     `json:"locationId,omitempty"`
	PriceCents      int64      `json:"priceCents"`
	Credits         int64      `json:"credits"`
	ValidDays       int64      `json:"validDays"`
	Status          string     `json:"status"`
	ProofURL        string     `json:"proofUrl"`
	ProofStorageID  string     `json:"-"`
	ProofUploadedAt *time.Time `json:"proofUploadedAt,omitempty"`
	ReviewNote      string     `json:"reviewNote"`
	ReviewedBy      *int64     `json:"reviewedBy,omitempty"`
	ReviewedAt      *time.Time `json:"reviewedAt,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
	// CreditLocationID restricts the granted credits; nil means every location.
	CreditLocationID *int64 `json:"creditLocationId,omitempty"`
}

type CreditLot struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"userId"`
	PurchaseID *int64    `json:"purchaseId,omitempty"`
	LocationID *int64    `json:"locationId,omitempty"`
	Total      int64     `json:"total"`
	Remaining  int64     `json:"remaining"`
	ExpiresAt  time.Time `json:"expiresAt"`
	CreatedAt  time.Time `json:"createdAt"`
}

type CreditTransaction struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	CreditLotID *int64    `json:"creditLotId,omitempty"`
	BookingID   *int64    `json:"bookingId,omitempty"`
	Amount      int64     `json:"amount"`
	Kind        string    `json:"kind"`
	Note        string    `json:"note"`
	CreatedBy   *int64    `json:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

type DefaultSchedule struct {
	ID              int64     `json:"id"`
	LocationID      int64     `json:"locationId"`
	ClassTypeID     int64     `json:"classTypeId"`
	CoachID         int64     `json:"coachId"`
	DayOfWeek       int64     `json:"dayOfWeek"`
	StartTime       string    `json:"startTime"`
	DurationMinutes int64     `json:"durationMinutes"`
	Capacity        int64     `json:"capacity"`
	EffectiveFrom   string    `json:"effectiveFrom"`
	EffectiveUntil  *string   `json:"effectiveUntil,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

type Class struct {
	ID                int64     `json:"id"`
	LocationID        int64     `json:"locationId"`
	ClassTypeID       int64     `json:"classTypeId"`
	CoachID           int64     `json:"coachId"`
	DefaultScheduleID *int64    `json:"defaultScheduleId,omitempty"`
	StartsAt          time.Time `json:"startsAt"`
	EndsAt            time.Time `json:"endsAt"`
	Capacity          int64     `json:"capacity"`
	Status            string    `json:"status"`
	CancelReason      string    `json:"cancelReason"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

type Booking struct {
	ID          int64      `json:"id"`
	Reference   string     `json:"reference"`
	ClassID     int64      `json:"classId"`
	UserID      int64      `json:"userId"`
	ChildID     *int64     `json:"childId,omitempty"`
	CreditLotID *int64     `json:"creditLotId,omitempty"`
	Status      string     `json:"status"`
	Refunded    bool       `json:"refunded"`
	CreatedAt   time.Time  `json:"createdAt"`
	CancelledAt *time.Time `json:"cancelledAt,omitempty"`
	CheckedInAt *time.Time `json:"checkedInAt,omitempty"`
}

type Checkin struct {
	ID         int64     `json:"id"`
	BookingID  int64     `json:"bookingId"`
	UserID     int64     `json:"userId"`
	LocationID int64     `json:"locationId"`
	ScannedBy  *int64    `json:"scannedBy,omitempty"`
	Method     string    `json:"method"`
	CreatedAt  time.Time `json:"createdAt"`
}

type ScheduleGeneration struct {
	LocationID     int64     `json:"locationId"`
	Month          string    `json:"month"`
	ClassesCreated int64     `json:"classesCreated"`
	GeneratedAt    time.Time `json:"generatedAt"`
}
