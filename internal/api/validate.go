package api

// FieldViolation describes one failed field constraint. Requests with any
// violation are rejected with 422 before the engine is invoked.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

type createRequest struct {
	ProductID         string `json:"product_id"`
	Quantity          *int   `json:"quantity"`
	WarehouseLocation string `json:"warehouse_location"`
}

type updateRequest struct {
	Quantity *int   `json:"quantity"`
	Reason   string `json:"reason"`
}

type adjustRequest struct {
	Quantity *int   `json:"quantity"`
	Reason   string `json:"reason"`
}

func validateCreate(req createRequest) []FieldViolation {
	var violations []FieldViolation
	if req.ProductID == "" {
		violations = append(violations, FieldViolation{Field: "product_id", Message: "product_id is required"})
	}
	switch {
	case req.Quantity == nil:
		violations = append(violations, FieldViolation{Field: "quantity", Message: "quantity is required"})
	case *req.Quantity < 0:
		violations = append(violations, FieldViolation{Field: "quantity", Message: "quantity cannot be negative"})
	}
	if req.WarehouseLocation == "" {
		violations = append(violations, FieldViolation{Field: "warehouse_location", Message: "warehouse_location is required"})
	}
	return violations
}

func validateUpdate(req updateRequest) []FieldViolation {
	var violations []FieldViolation
	switch {
	case req.Quantity == nil:
		violations = append(violations, FieldViolation{Field: "quantity", Message: "quantity is required"})
	case *req.Quantity < 0:
		violations = append(violations, FieldViolation{Field: "quantity", Message: "quantity cannot be negative"})
	}
	return violations
}

func validateAdjust(req adjustRequest) []FieldViolation {
	var violations []FieldViolation
	if req.Quantity == nil {
		violations = append(violations, FieldViolation{Field: "quantity", Message: "quantity is required"})
	}
	if req.Reason == "" {
		violations = append(violations, FieldViolation{Field: "reason", Message: "reason is required for adjustments"})
	}
	return violations
}
