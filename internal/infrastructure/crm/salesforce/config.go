package salesforce

import (
	"errors"
	"regexp"
	"strings"
)

// Config holds configuration for the Salesforce REST integration
type Config struct {
	// InstanceURL is the org's My Domain URL; the OAuth response may override it
	InstanceURL string
	// LoginURL is the OAuth host (production or sandbox)
	LoginURL string
	// APIVersion is the REST API version, e.g. v59.0
	APIVersion string
	// ClientID is the connected app consumer key
	ClientID string
	// ClientSecret is the connected app consumer secret
	ClientSecret string
	// RefreshToken is the integration user's OAuth refresh token
	RefreshToken string
	// TimeoutSeconds is the HTTP request timeout
	TimeoutSeconds int
	// HouseholdRecordTypeID is set as RecordTypeId on created household Accounts
	HouseholdRecordTypeID string
	// AdvisorNameField is a custom Account text field that stores the advisor name.
	// When empty the advisor is the Account owner and input advisor names are not written.
	AdvisorNameField string
}

const (
	// ProductionLoginURL is the OAuth endpoint host for production orgs
	ProductionLoginURL = "https://login.salesforce.com"
	// SandboxLoginURL is the OAuth endpoint host for sandboxes
	SandboxLoginURL = "https://test.salesforce.com"
	// DefaultAPIVersion is used when no version is configured
	DefaultAPIVersion = "v59.0"
)

// Errors for Salesforce configuration
var (
	ErrConfigInvalidAPIVersion  = errors.New("salesforce: api version must look like v59.0")
	ErrConfigMissingClientID    = errors.New("salesforce: client id is required")
	ErrConfigMissingSecret      = errors.New("salesforce: client secret is required")
	ErrConfigMissingRefresh     = errors.New("salesforce: refresh token is required")
	ErrConfigInvalidInstanceURL = errors.New("salesforce: instance url must be https")
	ErrConfigInvalidRecordType  = errors.New("salesforce: household record type id is not a record id")
	ErrConfigInvalidAdvisorName = errors.New("salesforce: advisor name field must be a custom field like Advisor_Name__c")
)

var (
	apiVersionPattern  = regexp.MustCompile(`^v\d{2,3}\.\d$`)
	customFieldPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*__c$`)
)

// NewConfig creates a configuration with defaults for a production org
func NewConfig(instanceURL, clientID, clientSecret, refreshToken string) *Config {
	return &Config{
		InstanceURL:    instanceURL,
		LoginURL:       ProductionLoginURL,
		APIVersion:     DefaultAPIVersion,
		ClientID:       clientID,
		ClientSecret:   clientSecret,
		RefreshToken:   refreshToken,
		TimeoutSeconds: 30,
	}
}

// Validate fills defaults and checks the settings the REST client needs
func (c *Config) Validate() error {
	if c.APIVersion == "" {
		c.APIVersion = DefaultAPIVersion
	}
	if !apiVersionPattern.MatchString(c.APIVersion) {
		return ErrConfigInvalidAPIVersion
	}
	if c.LoginURL == "" {
		c.LoginURL = ProductionLoginURL
	}
	c.LoginURL = strings.TrimRight(c.LoginURL, "/")
	c.InstanceURL = strings.TrimRight(c.InstanceURL, "/")
	if c.TimeoutSeconds <= 0 {
		c.TimeoutSeconds = 30
	}
	if c.HouseholdRecordTypeID != "" && !isRecordID(c.HouseholdRecordTypeID) {
		return ErrConfigInvalidRecordType
	}
	if c.AdvisorNameField != "" && !customFieldPattern.MatchString(c.AdvisorNameField) {
		return ErrConfigInvalidAdvisorName
	}
	return nil
}

// ValidateOAuth checks the settings the refresh-token exchange needs
func (c *Config) ValidateOAuth() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.ClientID == "" {
		return ErrConfigMissingClientID
	}
	if c.ClientSecret == "" {
		return ErrConfigMissingSecret
	}
	if c.RefreshToken == "" {
		return ErrConfigMissingRefresh
	}
	if c.InstanceURL != "" && !strings.HasPrefix(c.InstanceURL, "https://") {
		return ErrConfigInvalidInstanceURL
	}
	return nil
}
