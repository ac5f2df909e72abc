package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ConsentRecord is the canonical {address, permission} pair exchanged between
// the messaging client, the reconciler and the export surface.
type ConsentRecord struct {
	Address    string     `json:"address"`
	Permission Permission `json:"permission"`
}

// CheckAddress rejects addresses that cannot serve as a consent key: empty ones
// and ones with leading or trailing whitespace. Addresses are otherwise opaque.
func CheckAddress(address string) error {
	if strings.TrimSpace(address) == "" {
		return fmt.Errorf("%w: address is required", ErrInvalidAddress)
	}
	if strings.TrimSpace(address) != address {
		return fmt.Errorf("%w: %q has surrounding whitespace", ErrInvalidAddress, address)
	}
	return nil
}

// ConsentEntry is one row of the append-only consent history kept by the
// ledger-backed messaging client. Later rows supersede earlier ones for the
// same (owner, peer) pair.
type ConsentEntry struct {
	// EntryID is the unique identifier of the history row
	EntryID uuid.UUID `gorm:"column:entry_id;type:uuid;primaryKey" json:"entry_id"`
	// OwnerAddress is the wallet whose consent list this row belongs to
	OwnerAddress string `gorm:"column:owner_address;type:varchar(255);not null;index:idx_consent_entries_owner_created,composite:owner_created;index:idx_consent_entries_owner_peer,composite:owner_peer" json:"owner_address"`
	// PeerAddress is the counterparty the consent decision applies to
	PeerAddress string `gorm:"column:peer_address;type:varchar(255);not null;index:idx_consent_entries_owner_peer,composite:owner_peer" json:"peer_address"`
	// Permission is the consent state recorded by this row: allowed, denied or unknown
	Permission string `gorm:"column:permission;type:varchar(20);not null" json:"permission"`
	// Env is the messaging environment the row was written in
	Env string `gorm:"column:env;type:varchar(20);not null" json:"env"`
	// Sequence orders rows written within the same timestamp
	Sequence int64 `gorm:"column:sequence;not null;index:idx_consent_entries_owner_created,composite:owner_created" json:"sequence"`
	// CreatedAt is when the consent decision was recorded
	CreatedAt time.Time `gorm:"column:created_at;not null;index:idx_consent_entries_owner_created,composite:owner_created" json:"created_at"`
}

// TableName specifies the table name for GORM
func (*ConsentEntry) TableName() string {
	return "consent_entries"
}

// ToConsentRecord converts a history row into the canonical record.
func (e *ConsentEntry) ToConsentRecord() ConsentRecord {
	return ConsentRecord{
		Address:    e.PeerAddress,
		Permission: Permission(e.Permission),
	}
}

// LegacyConsentEntry is the {value, permissionType} shape some clients emit.
type LegacyConsentEntry struct {
	Value          string `json:"value"`
	PermissionType string `json:"permissionType"`
}

// ToConsentRecord maps the legacy shape onto the canonical schema.
func (e LegacyConsentEntry) ToConsentRecord() (ConsentRecord, error) {
	p, err := ParsePermission(e.PermissionType)
	if err != nil {
		return ConsentRecord{}, err
	}
	return ConsentRecord{Address: e.Value, Permission: p}, nil
}

// StateConsentEntry is the {address, state} shape some clients emit.
type StateConsentEntry struct {
	Address string `json:"address"`
	State   string `json:"state"`
}

// ToConsentRecord maps the state shape onto the canonical schema.
func (e StateConsentEntry) ToConsentRecord() (ConsentRecord, error) {
	p, err := ParsePermission(e.State)
	if err != nil {
		return ConsentRecord{}, err
	}
	return ConsentRecord{Address: e.Address, Permission: p}, nil
}

// ExternalConsentRecord accepts a consent record in any of the shapes clients
// emit: {address, permission}, {value, permissionType} or {address, state}.
type ExternalConsentRecord struct {
	record ConsentRecord
}

// UnmarshalJSON picks the adapter matching the fields present.
func (e *ExternalConsentRecord) UnmarshalJSON(data []byte) error {
	var raw struct {
		Address        string `json:"address"`
		Permission     string `json:"permission"`
		Value          string `json:"value"`
		PermissionType string `json:"permissionType"`
		State          string `json:"state"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var (
		record ConsentRecord
		err    error
	)
	switch {
	case raw.Value != "" || raw.PermissionType != "":
		record, err = LegacyConsentEntry{Value: raw.Value, PermissionType: raw.PermissionType}.ToConsentRecord()
	case raw.State != "":
		record, err = StateConsentEntry{Address: raw.Address, State: raw.State}.ToConsentRecord()
	default:
		var p Permission
		p, err = ParsePermission(raw.Permission)
		record = ConsentRecord{Address: raw.Address, Permission: p}
	}
	if err != nil {
		return err
	}
	e.record = record
	return nil
}

// ConsentRecord returns the canonical form of the record.
func (e ExternalConsentRecord) ConsentRecord() ConsentRecord {
	return e.record
}
