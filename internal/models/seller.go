package models

// Field names one contact attribute of a seller.
type Field string

const (
	FieldBusinessName   Field = "business_name"
	FieldPhone          Field = "phone"
	FieldAddress        Field = "address"
	FieldRepresentative Field = "representative"
	FieldStoreName      Field = "store_name"
	FieldEmail          Field = "email"
	FieldFax            Field = "fax"
)

// AllFields lists the extractable fields in canonical order.
var AllFields = []Field{
	FieldBusinessName,
	FieldPhone,
	FieldAddress,
	FieldRepresentative,
	FieldStoreName,
	FieldEmail,
	FieldFax,
}

func (f Field) String() string {
	return string(f)
}

// SellerRecord is the structured contact information of one seller page.
// An empty string means the field is unknown.
type SellerRecord struct {
	SellerName string `json:"seller_name"`
	SellerURL  string `json:"seller_url"`

	BusinessName   string `json:"business_name"`
	Phone          string `json:"phone"`
	Address        string `json:"address"`
	Representative string `json:"representative"`
	StoreName      string `json:"store_name"`
	Email          string `json:"email"`
	Fax            string `json:"fax"`
}

// NewSellerRecord builds a record from per-field values. Unknown keys are ignored.
func NewSellerRecord(values map[Field]string) SellerRecord {
	return SellerRecord{
		BusinessName:   values[FieldBusinessName],
		Phone:          values[FieldPhone],
		Address:        values[FieldAddress],
		Representative: values[FieldRepresentative],
		StoreName:      values[FieldStoreName],
		Email:          values[FieldEmail],
		Fax:            values[FieldFax],
	}
}

func (r SellerRecord) Get(f Field) string {
	switch f {
	case FieldBusinessName:
		return r.BusinessName
	case FieldPhone:
		return r.Phone
	case FieldAddress:
		return r.Address
	case FieldRepresentative:
		return r.Representative
	case FieldStoreName:
		return r.StoreName
	case FieldEmail:
		return r.Email
	case FieldFax:
		return r.Fax
	}
	return ""
}

// WithProvenance returns a copy carrying the seller name and URL the caller found.
func (r SellerRecord) WithProvenance(name, url string) SellerRecord {
	r.SellerName = name
	r.SellerURL = url
	return r
}

// IsEmpty reports whether none of the contact fields were found.
func (r SellerRecord) IsEmpty() bool {
	for _, f := range AllFields {
		if r.Get(f) != "" {
			return false
		}
	}
	return true
}

// FoundCount returns how many contact fields are populated.
func (r SellerRecord) FoundCount() int {
	n := 0
	for _, f := range AllFields {
		if r.Get(f) != "" {
			n++
		}
	}
	return n
}
