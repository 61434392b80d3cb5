package salesforce

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Object API names used by the adapter
const (
	objectContact             = "Contact"
	objectAccount             = "Account"
	objectTask                = "Task"
	objectFinancialAccount    = "FinServ__FinancialAccount__c"
	objectContactRelationship = "FinServ__ContactContactRelation__c"
)

// householdAccountType marks Account records that represent households
const householdAccountType = "Household"

// ---------------------------------------------------------------------------
// REST envelopes
// ---------------------------------------------------------------------------

// queryResponse is the body of GET /query
type queryResponse struct {
	TotalSize      int               `json:"totalSize"`
	Done           bool              `json:"done"`
	NextRecordsURL string            `json:"nextRecordsUrl,omitempty"`
	Records        []json.RawMessage `json:"records"`
}

// apiErrorItem is one element of the error array Salesforce returns
type apiErrorItem struct {
	Message    string   `json:"message"`
	ErrorCode  string   `json:"errorCode"`
	StatusCode string   `json:"statusCode,omitempty"`
	Fields     []string `json:"fields,omitempty"`
}

// code returns whichever code field the endpoint filled in
func (e apiErrorItem) code() string {
	if e.ErrorCode != "" {
		return e.ErrorCode
	}
	return e.StatusCode
}

// saveResult is the body of a single create and each element of a collection create
type saveResult struct {
	ID      string         `json:"id"`
	Success bool           `json:"success"`
	Errors  []apiErrorItem `json:"errors"`
}

// IsSuccess returns true if the record was saved
func (r *saveResult) IsSuccess() bool {
	return r.Success && r.ID != ""
}

// collectionRequest is the body of POST /composite/sobjects
type collectionRequest struct {
	AllOrNone bool             `json:"allOrNone"`
	Records   []map[string]any `json:"records"`
}

// tokenResponse is the body of a successful OAuth token exchange
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	InstanceURL string `json:"instance_url"`
	ID          string `json:"id"`
	TokenType   string `json:"token_type"`
	IssuedAt    string `json:"issued_at"`
}

// oauthError is the body of a failed OAuth token exchange
type oauthError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
}

// ---------------------------------------------------------------------------
// Records
// ---------------------------------------------------------------------------

type nameRef struct {
	Name *string `json:"Name"`
}

type sfContact struct {
	ID          string   `json:"Id"`
	FirstName   *string  `json:"FirstName"`
	LastName    *string  `json:"LastName"`
	Email       *string  `json:"Email"`
	Phone       *string  `json:"Phone"`
	AccountID   *string  `json:"AccountId"`
	Account     *nameRef `json:"Account"`
	CreatedDate *string  `json:"CreatedDate"`
}

type sfAccount struct {
	ID          string   `json:"Id"`
	Name        *string  `json:"Name"`
	Description *string  `json:"Description"`
	CreatedDate *string  `json:"CreatedDate"`
	Owner       *nameRef `json:"Owner"`
}

type sfTask struct {
	ID           string   `json:"Id"`
	Subject      *string  `json:"Subject"`
	Status       *string  `json:"Status"`
	Priority     *string  `json:"Priority"`
	Description  *string  `json:"Description"`
	CreatedDate  *string  `json:"CreatedDate"`
	ActivityDate *string  `json:"ActivityDate"`
	WhatID       *string  `json:"WhatId"`
	What         *nameRef `json:"What"`
	WhoID        *string  `json:"WhoId"`
}

type sfFinancialAccount struct {
	ID           string              `json:"Id"`
	Name         *string             `json:"Name"`
	AccountType  *string             `json:"FinServ__FinancialAccountType__c"`
	TaxStatus    *string             `json:"FinServ__TaxStatus__c"`
	Balance      decimal.NullDecimal `json:"FinServ__Balance__c"`
	HouseholdID  *string             `json:"FinServ__Household__c"`
	Household    *nameRef            `json:"FinServ__Household__r"`
	PrimaryOwner *nameRef            `json:"FinServ__PrimaryOwner__r"`
	Status       *string             `json:"FinServ__Status__c"`
	OpenDate     *string             `json:"FinServ__OpenDate__c"`
}

// Field lists requested by each query, kept next to the structs they fill
var (
	contactFields = []string{
		"Id", "FirstName", "LastName", "Email", "Phone",
		"AccountId", "Account.Name", "CreatedDate",
	}
	householdFields = []string{
		"Id", "Name", "Description", "CreatedDate", "Owner.Name",
	}
	taskFields = []string{
		"Id", "Subject", "Status", "Priority", "Description", "CreatedDate",
		"ActivityDate", "WhatId", "What.Name", "WhoId",
	}
	financialAccountFields = []string{
		"Id", "Name", "FinServ__FinancialAccountType__c", "FinServ__TaxStatus__c",
		"FinServ__Balance__c", "FinServ__Household__c", "FinServ__Household__r.Name",
		"FinServ__PrimaryOwner__r.Name", "FinServ__Status__c", "FinServ__OpenDate__c",
	}
)
