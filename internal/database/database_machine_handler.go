package database

import (
	"errors"
	"time"

	"krampus/internal/domain"

	"gorm.io/gorm"
)

// UpsertMachine records a preflight check-in. Empty fields from the agent
// never clobber previously reported values.
func UpsertMachine(machine *domain.Machine) error {
	now := time.Now()
	machine.LastPreflightSync = &now

	return DB.Transaction(func(tx *gorm.DB) error {
		var existing domain.Machine
		err := tx.Where("machine_id = ?", machine.MachineID).First(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(machine).Error
		}
		if err != nil {
			return err
		}

		updates := map[string]any{"last_preflight_sync": machine.LastPreflightSync}
		if machine.SerialNumber != "" {
			updates["serial_number"] = machine.SerialNumber
		}
		if machine.Hostname != "" {
			updates["hostname"] = machine.Hostname
		}
		if machine.OSVersion != "" {
			updates["os_version"] = machine.OSVersion
		}
		if machine.OSBuild != "" {
			updates["os_build"] = machine.OSBuild
		}
		if machine.AgentVersion != "" {
			updates["agent_version"] = machine.AgentVersion
		}
		if machine.ClientMode != "" {
			updates["client_mode"] = machine.ClientMode
		}

		if err := tx.Model(&existing).Updates(updates).Error; err != nil {
			return err
		}
		*machine = existing
		return nil
	})
}

func GetMachine(machineID string) (*domain.Machine, error) {
	var machine domain.Machine
	err := DB.Where("machine_id = ?", machineID).First(&machine).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &machine, nil
}

func ListMachines() ([]domain.Machine, error) {
	var machines []domain.Machine
	if err := DB.Order("machine_id").Find(&machines).Error; err != nil {
		return nil, err
	}
	return machines, nil
}

// SetMachineRuleCursor advances the rule-download resume point after a
// machine acknowledges a delivered batch.
func SetMachineRuleCursor(machineID string, cursor uint64) error {
	return DB.Model(&domain.Machine{}).
		Where("machine_id = ?", machineID).
		Update("rule_cursor", cursor).Error
}
