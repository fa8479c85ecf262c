package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type OrderStatus string

const (
	StatusPending    OrderStatus = "pending"
	StatusProcessing OrderStatus = "processing"
	StatusShipped    OrderStatus = "shipped"
	StatusDelivered  OrderStatus = "delivered"
	StatusCancelled  OrderStatus = "cancelled"
)

// ParseOrderStatus reports whether raw names a known order status.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	switch s := OrderStatus(raw); s {
	case StatusPending, StatusProcessing, StatusShipped, StatusDelivered, StatusCancelled:
		return s, true
	}
	return "", false
}

// Rank orders the fulfilment statuses along pending → processing → shipped → delivered.
// Cancelled sits outside that line and ranks -1.
func (s OrderStatus) Rank() int {
	switch s {
	case StatusPending:
		return 0
	case StatusProcessing:
		return 1
	case StatusShipped:
		return 2
	case StatusDelivered:
		return 3
	}
	return -1
}

// Cancellable is true only for pending and processing orders.
func (s OrderStatus) Cancellable() bool {
	return s == StatusPending || s == StatusProcessing
}

type PaymentMethod string

const (
	PaymentStripe PaymentMethod = "stripe"
	PaymentPayPal PaymentMethod = "paypal"
	PaymentCOD    PaymentMethod = "cod"
)

func (m PaymentMethod) Valid() bool {
	return m == PaymentStripe || m == PaymentPayPal || m == PaymentCOD
}

// OrderLine is a snapshot of a product taken when the order was placed.
// Later catalog edits never reach it.
type OrderLine struct {
	ProductID primitive.ObjectID `bson:"productId" json:"productId"`
	Name      string             `bson:"name" json:"name"`
	Image     string             `bson:"image,omitempty" json:"image,omitempty"`
	UnitPrice float64            `bson:"unitPrice" json:"unitPrice"`
	Quantity  int                `bson:"quantity" json:"quantity"`
}

// ShippingAddress is copied verbatim from the checkout request.
type ShippingAddress struct {
	Name    string `bson:"name" json:"name" binding:"required,min=2"`
	Street  string `bson:"street" json:"street" binding:"required,min=5"`
	City    string `bson:"city" json:"city" binding:"required,min=2"`
	State   string `bson:"state" json:"state" binding:"required,min=2"`
	ZipCode string `bson:"zipCode" json:"zipCode" binding:"required,min=3"`
	Country string `bson:"country" json:"country" binding:"required,min=2"`
	Phone   string `bson:"phone" json:"phone" binding:"required,min=10"`
}

// PaymentResult holds what the payment provider reported back.
type PaymentResult struct {
	ID           string `bson:"id" json:"id"`
	Status       string `bson:"status" json:"status"`
	UpdateTime   string `bson:"updateTime,omitempty" json:"update_time,omitempty"`
	EmailAddress string `bson:"emailAddress,omitempty" json:"email_address,omitempty"`
}

// Order defines the persisted order document.
type Order struct {
	ID              primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID          primitive.ObjectID `bson:"userId" json:"userId"`
	Lines           []OrderLine        `bson:"lines" json:"lines"`
	ShippingAddress ShippingAddress    `bson:"shippingAddress" json:"shippingAddress"`
	PaymentMethod   PaymentMethod      `bson:"paymentMethod" json:"paymentMethod"`
	ItemsPrice      float64            `bson:"itemsPrice" json:"itemsPrice"`
	TaxPrice        float64            `bson:"taxPrice" json:"taxPrice"`
	ShippingPrice   float64            `bson:"shippingPrice" json:"shippingPrice"`
	TotalPrice      float64            `bson:"totalPrice" json:"totalPrice"`
	IsPaid          bool               `bson:"isPaid" json:"isPaid"`
	PaidAt          *time.Time         `bson:"paidAt,omitempty" json:"paidAt,omitempty"`
	PaymentResult   *PaymentResult     `bson:"paymentResult,omitempty" json:"paymentResult,omitempty"`
	Status          OrderStatus        `bson:"status" json:"status"`
	IsDelivered     bool               `bson:"isDelivered" json:"isDelivered"`
	DeliveredAt     *time.Time         `bson:"deliveredAt,omitempty" json:"deliveredAt,omitempty"`
	TrackingNumber  string             `bson:"trackingNumber,omitempty" json:"trackingNumber,omitempty"`
	Notes           string             `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt       time.Time          `bson:"createdAt" json:"createdAt"`
	UpdatedAt       time.Time          `bson:"updatedAt" json:"updatedAt"`
}

// OwnedBy reports whether the identity placed the order.
func (o Order) OwnedBy(id primitive.ObjectID) bool {
	return o.UserID == id
}

// Clone returns a deep copy so callers never share line slices or pointers.
func (o Order) Clone() Order {
	out := o
	out.Lines = append([]OrderLine(nil), o.Lines...)
	if o.PaidAt != nil {
		t := *o.PaidAt
		out.PaidAt = &t
	}
	if o.DeliveredAt != nil {
		t := *o.DeliveredAt
		out.DeliveredAt = &t
	}
	if o.PaymentResult != nil {
		pr := *o.PaymentResult
		out.PaymentResult = &pr
	}
	return out
}
