// Package crm defines the provider-independent CRM model used by the advisor
// practice backend: canonical records, the error taxonomy, the CRM port with
// its optional capabilities, and the read-only supplementary data-source port.
//
// Business logic depends only on this package. Concrete providers live under
// internal/infrastructure and translate their wire formats into these types.
package crm
