package cli

import "github.com/noah-isme/factory-ops-api/internal/dto"

func dtoCreateJig() dto.CreateJigRequestRequest {
	return dto.CreateJigRequestRequest{Title: "Drill fixture", Requester: "Line 2", Quantity: 4}
}

func dtoStatus(status string) dto.ChangeStatusRequest {
	return dto.ChangeStatusRequest{Status: status}
}
