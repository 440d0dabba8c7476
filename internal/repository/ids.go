package repository

import (
	"fmt"

	"github.com/sony/sonyflake"

	"github.com/uniadm/academic-api/internal/models"
)

var idWorker = sonyflake.NewSonyflake(sonyflake.Settings{})

// nextID yields a time-ordered 64-bit identifier for new rows.
func nextID() (models.ID, error) {
	id, err := idWorker.NextID()
	if err != nil {
		return 0, fmt.Errorf("generate id: %w", err)
	}
	return models.ID(id), nil
}
