package api

import (
	"errors"
	"fmt"
	"strings"

	"dispatchnav/internal/model"
)

func validateCoordinate(c model.Coordinate) error {
	if !c.Valid() {
		return fmt.Errorf("coordinate %v out of range", c)
	}
	return nil
}

// validateGeofenceConfig rejects negative radii. Arrival radii below
// MinArrivalRadiusM are accepted and clamped when saved.
func validateGeofenceConfig(c model.GeofenceConfig) error {
	if c.DeviationRadiusM < 0 {
		return errors.New("deviationRadius must be >= 0")
	}
	if c.ArrivalRadiusM < 0 {
		return errors.New("arrivalRadius must be >= 0")
	}
	return nil
}

func validateRestrictedArea(a model.RestrictedArea) error {
	if err := validateCoordinate(a.Center); err != nil {
		return err
	}
	if a.RadiusM <= 0 {
		return errors.New("radius must be > 0")
	}
	return nil
}

func validatePosition(p model.DriverPosition) error {
	if strings.TrimSpace(p.DriverID) == "" {
		return errors.New("driverId required")
	}
	return validateCoordinate(p.Position)
}

// validateTaskInput checks the caller supplied fields of a plan submission.
// Anchors and waypoints come from the plan itself.
func validateTaskInput(in model.TaskInput) error {
	if strings.TrimSpace(in.Description) == "" {
		return errors.New("description required")
	}
	if len(in.Drivers) == 0 {
		return errors.New("at least one driver required")
	}
	for _, d := range in.Drivers {
		if strings.TrimSpace(d) == "" {
			return errors.New("driver ids must be non-empty")
		}
	}
	if in.DeviationRadiusM < 0 {
		return errors.New("keluarJalurRadius must be >= 0")
	}
	return nil
}
