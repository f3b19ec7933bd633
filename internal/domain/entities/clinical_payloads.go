package entities

import (
	"fmt"
	"strings"
	"time"
)

// VitalSigns is a structured vitals reading attached to a document
type VitalSigns struct {
	TemperatureC     *float64  `json:"temperature_c,omitempty"`
	HeartRate        *int      `json:"heart_rate,omitempty"`
	RespiratoryRate  *int      `json:"respiratory_rate,omitempty"`
	SystolicBP       *int      `json:"systolic_bp,omitempty"`
	DiastolicBP      *int      `json:"diastolic_bp,omitempty"`
	OxygenSaturation *float64  `json:"oxygen_saturation,omitempty"`
	RecordedAt       time.Time `json:"recorded_at"`
}

// Validate checks physiological plausibility bounds on populated fields
func (v *VitalSigns) Validate() error {
	if v.TemperatureC != nil && (*v.TemperatureC < 25 || *v.TemperatureC > 45) {
		return fmt.Errorf("temperature %.1fC out of range", *v.TemperatureC)
	}
	if v.HeartRate != nil && (*v.HeartRate < 0 || *v.HeartRate > 300) {
		return fmt.Errorf("heart rate %d out of range", *v.HeartRate)
	}
	if v.RespiratoryRate != nil && (*v.RespiratoryRate < 0 || *v.RespiratoryRate > 100) {
		return fmt.Errorf("respiratory rate %d out of range", *v.RespiratoryRate)
	}
	if v.SystolicBP != nil && (*v.SystolicBP < 0 || *v.SystolicBP > 350) {
		return fmt.Errorf("systolic pressure %d out of range", *v.SystolicBP)
	}
	if v.DiastolicBP != nil && (*v.DiastolicBP < 0 || *v.DiastolicBP > 250) {
		return fmt.Errorf("diastolic pressure %d out of range", *v.DiastolicBP)
	}
	if v.OxygenSaturation != nil && (*v.OxygenSaturation < 0 || *v.OxygenSaturation > 100) {
		return fmt.Errorf("oxygen saturation %.1f out of range", *v.OxygenSaturation)
	}
	return nil
}

// Diagnosis is a coded diagnosis attached to a document
type Diagnosis struct {
	Code    string `json:"code"`
	System  string `json:"system"`
	Display string `json:"display"`
	Primary bool   `json:"primary"`
}

// Validate requires a code and coding system
func (d *Diagnosis) Validate() error {
	if strings.TrimSpace(d.Code) == "" {
		return fmt.Errorf("diagnosis code is required")
	}
	if strings.TrimSpace(d.System) == "" {
		return fmt.Errorf("diagnosis coding system is required")
	}
	return nil
}

// Medication is a medication entry attached to a document
type Medication struct {
	Name      string `json:"name"`
	Dose      string `json:"dose"`
	Route     string `json:"route"`
	Frequency string `json:"frequency"`
}

// Validate requires a name and dose
func (m *Medication) Validate() error {
	if strings.TrimSpace(m.Name) == "" {
		return fmt.Errorf("medication name is required")
	}
	if strings.TrimSpace(m.Dose) == "" {
		return fmt.Errorf("medication dose is required")
	}
	return nil
}

// Order is a clinical order (lab, imaging, referral) attached to a document
type Order struct {
	Kind        string `json:"kind"`
	Description string `json:"description"`
	OrderedBy   string `json:"ordered_by"`
}

// Validate requires a kind and description
func (o *Order) Validate() error {
	if strings.TrimSpace(o.Kind) == "" {
		return fmt.Errorf("order kind is required")
	}
	if strings.TrimSpace(o.Description) == "" {
		return fmt.Errorf("order description is required")
	}
	return nil
}

// ValidatePayloads checks every structured payload on the document
func (d *ClinicalDocument) ValidatePayloads() error {
	if d.VitalSigns != nil {
		if err := d.VitalSigns.Validate(); err != nil {
			return err
		}
	}
	for i := range d.Diagnoses {
		if err := d.Diagnoses[i].Validate(); err != nil {
			return err
		}
	}
	for i := range d.Medications {
		if err := d.Medications[i].Validate(); err != nil {
			return err
		}
	}
	for i := range d.Orders {
		if err := d.Orders[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}
