package models

import (
	"strings"
	"time"
)

// MasterDataDocumentID is the singleton document id inside CollectionMasterData.
const MasterDataDocumentID = "lists"

// MasterDataList names one of the reference lists.
type MasterDataList string

const (
	MasterDataRequesters   MasterDataList = "requesters"
	MasterDataDestinations MasterDataList = "destinations"
	MasterDataApprovers    MasterDataList = "approvers"
	MasterDataRequestTypes MasterDataList = "requestTypes"
)

// Valid reports whether the list name is known.
func (l MasterDataList) Valid() bool {
	switch l {
	case MasterDataRequesters, MasterDataDestinations, MasterDataApprovers, MasterDataRequestTypes:
		return true
	}
	return false
}

// MasterData holds reference lists referenced by name from records.
type MasterData struct {
	Requesters   []string  `json:"requesters"`
	Destinations []string  `json:"destinations"`
	Approvers    []string  `json:"approvers"`
	RequestTypes []string  `json:"requestTypes"`
	UpdatedBy    string    `json:"updatedBy,omitempty"`
	UpdatedAt    time.Time `json:"updatedAt,omitempty"`
}

// List returns the values of the named list.
func (m *MasterData) List(name MasterDataList) []string {
	switch name {
	case MasterDataRequesters:
		return m.Requesters
	case MasterDataDestinations:
		return m.Destinations
	case MasterDataApprovers:
		return m.Approvers
	case MasterDataRequestTypes:
		return m.RequestTypes
	}
	return nil
}

// SetList replaces the named list.
func (m *MasterData) SetList(name MasterDataList, values []string) {
	switch name {
	case MasterDataRequesters:
		m.Requesters = values
	case MasterDataDestinations:
		m.Destinations = values
	case MasterDataApprovers:
		m.Approvers = values
	case MasterDataRequestTypes:
		m.RequestTypes = values
	}
}

// NormalizeList trims values, drops blanks and removes duplicates keeping first occurrence.
func NormalizeList(values []string) []string {
	out := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

// MergeList appends values missing from existing, preserving existing order.
func MergeList(existing, values []string) []string {
	return NormalizeList(append(append([]string{}, existing...), values...))
}
