package domain

// SubjectID is the authenticated subject extracted from JWT claims (typically "sub").
// We model it as an opaque identifier: its format is controlled by the IdP.
type SubjectID string

// MemberID is an internal identifier for a persisted member record.
type MemberID string

// Rut is the Chilean national identifier used to key attendance rows.
// Walk-in visitors without one get a generated "VISITA-" surrogate.
type Rut string
