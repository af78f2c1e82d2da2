package provider

import (
	"encoding/json"
	"time"
)

// KycRequest is the body sent when creating or updating a KYC request.
type KycRequest struct {
	Type                    string        `json:"type,omitempty"`
	TaxStatus               string        `json:"tax_status,omitempty"`
	Name                    string        `json:"name,omitempty"`
	DateOfBirth             string        `json:"date_of_birth,omitempty"`
	Gender                  string        `json:"gender,omitempty"`
	Occupation              string        `json:"occupation,omitempty"`
	PAN                     string        `json:"pan,omitempty"`
	Email                   string        `json:"email,omitempty"`
	Mobile                  *Mobile       `json:"mobile,omitempty"`
	CountryOfBirth          string        `json:"country_of_birth,omitempty"`
	PlaceOfBirth            string        `json:"place_of_birth,omitempty"`
	UseDefaultTaxResidences *bool         `json:"use_default_tax_residences,omitempty"`
	FirstTaxResidency       *TaxResidency `json:"first_tax_residency,omitempty"`
	SourceOfWealth          string        `json:"source_of_wealth,omitempty"`
	IncomeSlab              string        `json:"income_slab,omitempty"`
	PEPDetails              string        `json:"pep_details,omitempty"`
}

// Mobile is a phone number split into dialing code and subscriber number.
type Mobile struct {
	ISD    string `json:"isd"`
	Number string `json:"number"`
}

// TaxResidency describes a country of tax residence.
type TaxResidency struct {
	Country     string `json:"country"`
	TaxIDType   string `json:"taxid_type"`
	TaxIDNumber string `json:"taxid_number"`
}

// KycRequestResource is the provider's view of a KYC request.
type KycRequestResource struct {
	ID        string    `json:"id"`
	Object    string    `json:"object,omitempty"`
	Status    string    `json:"status,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
	CreatedAt time.Time `json:"created_at,omitempty"`
	KycRequest
}

// IdentityDocumentRequest asks the provider to start an identity document fetch.
type IdentityDocumentRequest struct {
	KycRequest  string `json:"kyc_request"`
	Type        string `json:"type"`
	PostbackURL string `json:"postback_url,omitempty"`
}

// IdentityDocument is the provider's identity document resource.
type IdentityDocument struct {
	ID          string `json:"id"`
	Object      string `json:"object,omitempty"`
	KycRequest  string `json:"kyc_request,omitempty"`
	Type        string `json:"type,omitempty"`
	Status      string `json:"status,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	PostbackURL string `json:"postback_url,omitempty"`
}

// EsignRequest asks the provider to start an e-sign.
type EsignRequest struct {
	KycRequest  string `json:"kyc_request"`
	PostbackURL string `json:"postback_url,omitempty"`
}

// Esign is the provider's e-sign resource.
type Esign struct {
	ID          string `json:"id"`
	Object      string `json:"object,omitempty"`
	KycRequest  string `json:"kyc_request,omitempty"`
	Status      string `json:"status,omitempty"`
	RedirectURL string `json:"redirect_url,omitempty"`
	PostbackURL string `json:"postback_url,omitempty"`
}

// InvestorProfileRequest creates an investor profile.
type InvestorProfileRequest struct {
	Type                    string        `json:"type,omitempty"`
	TaxStatus               string        `json:"tax_status,omitempty"`
	Name                    string        `json:"name,omitempty"`
	DateOfBirth             string        `json:"date_of_birth,omitempty"`
	Gender                  string        `json:"gender,omitempty"`
	Occupation              string        `json:"occupation,omitempty"`
	PAN                     string        `json:"pan,omitempty"`
	CountryOfBirth          string        `json:"country_of_birth,omitempty"`
	PlaceOfBirth            string        `json:"place_of_birth,omitempty"`
	UseDefaultTaxResidences *bool         `json:"use_default_tax_residences,omitempty"`
	FirstTaxResidency       *TaxResidency `json:"first_tax_residency,omitempty"`
	SourceOfWealth          string        `json:"source_of_wealth,omitempty"`
	IncomeSlab              string        `json:"income_slab,omitempty"`
	PEPDetails              string        `json:"pep_details,omitempty"`
}

// InvestorProfile is the created profile. Raw keeps the full provider answer.
type InvestorProfile struct {
	ID  string          `json:"id"`
	Raw json.RawMessage `json:"-"`
}

// File is an uploaded file resource. Raw keeps the full provider answer.
type File struct {
	ID  string          `json:"id"`
	Raw json.RawMessage `json:"-"`
}

// Upload describes a file to send to the provider.
type Upload struct {
	Filename string
	Content  []byte
	Purpose  string
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type,omitempty"`
	ExpiresIn   int64  `json:"expires_in"`
}
