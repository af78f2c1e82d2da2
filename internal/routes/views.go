package routes

import (
	"time"

	"github.com/arthgyan/onboarding/internal/subject"
)

type userView struct {
	ID                 string     `json:"id"`
	PhoneNumber        string     `json:"phoneNumber,omitempty"`
	Email              string     `json:"email,omitempty"`
	Name               string     `json:"name,omitempty"`
	PANNumber          string     `json:"panNumber,omitempty"`
	PANUpdatedAt       *time.Time `json:"panUpdatedAt,omitempty"`
	Occupation         string     `json:"occupation,omitempty"`
	Income             string     `json:"income,omitempty"`
	DOB                string     `json:"dob,omitempty"`
	Pincode            string     `json:"pincode,omitempty"`
	Address            string     `json:"address,omitempty"`
	City               string     `json:"city,omitempty"`
	District           string     `json:"district,omitempty"`
	State              string     `json:"state,omitempty"`
	IsGoogleUser       bool       `json:"isGoogleUser"`
	HasPIN             bool       `json:"hasPin"`
	KycID              string     `json:"kycId,omitempty"`
	IdentityDocumentID string     `json:"identityDocumentId,omitempty"`
	EsignID            string     `json:"esignId,omitempty"`
	InvestorID         string     `json:"investorId,omitempty"`
	CreatedAt          time.Time  `json:"createdAt"`
	UpdatedAt          time.Time  `json:"updatedAt"`
}

func newUserView(s subject.Subject) userView {
	return userView{
		ID:                 s.ID,
		PhoneNumber:        s.Phone,
		Email:              s.Email,
		Name:               s.FullName,
		PANNumber:          s.PAN,
		PANUpdatedAt:       s.PANUpdatedAt,
		Occupation:         s.Occupation,
		Income:             s.Income,
		DOB:                s.DateOfBirth,
		Pincode:            s.Pincode,
		Address:            s.Address,
		City:               s.City,
		District:           s.District,
		State:              s.State,
		IsGoogleUser:       s.IsGoogleUser,
		HasPIN:             s.HasPIN(),
		KycID:              s.KycRequestID,
		IdentityDocumentID: s.IdentityDocumentID,
		EsignID:            s.EsignID,
		InvestorID:         s.InvestorProfileID,
		CreatedAt:          s.CreatedAt,
		UpdatedAt:          s.UpdatedAt,
	}
}

// contactView is the short form returned by OTP, PIN and lookup endpoints.
type contactView struct {
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Email       string `json:"email,omitempty"`
	Name        string `json:"name,omitempty"`
}

func newContactView(s subject.Subject) contactView {
	return contactView{PhoneNumber: s.Phone, Email: s.Email, Name: s.FullName}
}

// profileFields is the profile part of update requests.
type profileFields struct {
	FullName   string `json:"fullName"`
	Email      string `json:"email" validate:"omitempty,email"`
	PANNumber  string `json:"panNumber" validate:"omitempty,len=10"`
	Occupation string `json:"occupation"`
	Income     string `json:"income"`
	Address    string `json:"address"`
	DOB        string `json:"dob"`
	Pincode    string `json:"pincode"`
	City       string `json:"city"`
	District   string `json:"district"`
	State      string `json:"state"`
}

func (p profileFields) profile() subject.Profile {
	return subject.Profile{
		FullName:    p.FullName,
		Email:       p.Email,
		PAN:         p.PANNumber,
		Occupation:  p.Occupation,
		Income:      p.Income,
		DateOfBirth: p.DOB,
		Pincode:     p.Pincode,
		Address:     p.Address,
		City:        p.City,
		District:    p.District,
		State:       p.State,
	}
}
