// Package repository persists reservations and payouts. The MySQL
// repositories are used in production; MemoryStore backs tests and local
// runs without a database.
package repository

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/court-booking/internal/model"
)

// ErrConflict is returned when a write violates a unique key other than
// the slot occupancy key, such as a reused payment reference.
var ErrConflict = errors.New("conflict")

const (
	mysqlDuplicateEntry = 1062
	occupancyKey        = "uq_reservations_occupancy"
)

// mapWriteErr turns MySQL duplicate-key failures into domain errors. A
// violation of the occupancy key means another writer took the slot first.
func mapWriteErr(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		if strings.Contains(me.Message, occupancyKey) {
			return fmt.Errorf("%w: %s", model.ErrSlotTaken, me.Message)
		}
		return fmt.Errorf("%w: %s", ErrConflict, me.Message)
	}
	return err
}
