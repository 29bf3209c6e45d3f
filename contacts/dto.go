package contacts

import "strings"

// ContactRequest is the body of POST /contacts and PUT /contacts/{id}.
// PUT replaces every field.
type ContactRequest struct {
	FirstName string  `json:"first_name" validate:"required,max=100" example:"John"`
	LastName  string  `json:"last_name" validate:"required,max=100" example:"Doe"`
	Email     string  `json:"email" validate:"required,email,max=255" example:"john.doe@example.com"`
	Phone     string  `json:"phone" validate:"required,max=32" example:"+380501234567"`
	Birthday  string  `json:"birthday" validate:"required,datetime=2006-01-02" example:"1990-05-17"`
	Extra     *string `json:"extra,omitempty" validate:"omitempty,max=2000" example:"Met at GopherCon"`
}

// normalize trims whitespace and lowercases the email before validation.
func (r *ContactRequest) normalize() {
	r.FirstName = strings.TrimSpace(r.FirstName)
	r.LastName = strings.TrimSpace(r.LastName)
	r.Email = strings.ToLower(strings.TrimSpace(r.Email))
	r.Phone = strings.TrimSpace(r.Phone)
	r.Birthday = strings.TrimSpace(r.Birthday)
	if r.Extra != nil && strings.TrimSpace(*r.Extra) == "" {
		r.Extra = nil
	}
}

// Input is a validated ContactRequest.
type Input struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Birthday  Date
	Extra     *string
}

func (r *ContactRequest) toInput() (Input, error) {
	bd, err := ParseDate(r.Birthday)
	if err != nil {
		return Input{}, err
	}
	return Input{
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Email:     r.Email,
		Phone:     r.Phone,
		Birthday:  bd,
		Extra:     r.Extra,
	}, nil
}
