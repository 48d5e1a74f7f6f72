package dto

// MasterDataListRequest replaces or merges one master data list.
type MasterDataListRequest struct {
	Values []string `json:"values" validate:"required,dive,max=200"`
}
