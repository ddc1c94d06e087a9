// Package medication implements personal medication management: the
// medication list with its status lifecycle, dose reminders, intake
// records, and adherence statistics, plus AI helpers for interaction
// analysis and package-photo recognition.
package medication

import (
	"errors"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"medai-backend/store"
)

const (
	medicationsFile = "medications.json"
	remindersFile   = "medication_reminders.json"
	intakesFile     = "medication_intake_records.json"
)

// Medication statuses.
const (
	StatusActive    = "active"
	StatusCompleted = "completed"
	StatusStopped   = "stopped"
)

var ErrNotFound = errors.New("medication: not found")

// Medication is one entry in a user's medication list.
type Medication struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Dosage            string `json:"dosage"`
	Frequency         string `json:"frequency"`
	Duration          string `json:"duration"`
	StartDate         string `json:"start_date"`
	EndDate           string `json:"end_date"`
	Notes             string `json:"notes"`
	Category          string `json:"category"`
	PrescribingDoctor string `json:"prescribing_doctor"`
	SideEffects       string `json:"side_effects"`
	RecordID          string `json:"record_id"`
	Status            string `json:"status"`
	CreatedAt         string `json:"created_at"`
	UpdatedAt         string `json:"updated_at"`
}

// Reminder is a recurring dose reminder tied to a medication.
type Reminder struct {
	ID             string   `json:"id"`
	MedicationID   string   `json:"medication_id"`
	MedicationName string   `json:"medication_name"`
	Times          []string `json:"times"`
	ReminderType   string   `json:"reminder_type"`
	IntervalDays   any      `json:"interval_days"`
	CustomSchedule any      `json:"custom_schedule"`
	Enabled        *bool    `json:"enabled"`
	RecordID       string   `json:"record_id"`
	CreatedAt      string   `json:"created_at"`
	LastReminded   *string  `json:"last_reminded"`
}

// Intake is one logged dose.
type Intake struct {
	ID             string `json:"id"`
	MedicationID   string `json:"medication_id"`
	MedicationName string `json:"medication_name"`
	TakenAt        string `json:"taken_at"`
	Dosage         string `json:"dosage"`
	Notes          string `json:"notes"`
	RecordID       string `json:"record_id"`
	RecordName     string `json:"record_name"`
	CreatedAt      string `json:"created_at"`
}

// AdherenceStats summarizes recent intake against the expected schedule.
type AdherenceStats struct {
	TotalMedications   int     `json:"total_medications"`
	TotalDosesExpected int     `json:"total_doses_expected"`
	TotalDosesTaken    int     `json:"total_doses_taken"`
	AdherenceRate      float64 `json:"adherence_rate"`
	Days               int     `json:"days"`
}

type medicationsDoc struct {
	Medications map[string][]*Medication `json:"medications"`
}

type remindersDoc struct {
	Reminders map[string][]*Reminder `json:"reminders"`
}

type intakesDoc struct {
	Records map[string][]*Intake `json:"records"`
}

// Manager owns the three medication documents in the flat-file store.
type Manager struct {
	db *store.DB
}

func NewManager(db *store.DB) *Manager {
	return &Manager{db: db}
}

func newID() string {
	return uuid.NewString()
}

func (m *Manager) loadMedications() (map[string][]*Medication, error) {
	var doc medicationsDoc
	if err := m.db.Load(medicationsFile, &doc); err != nil {
		return nil, err
	}
	if doc.Medications == nil {
		doc.Medications = map[string][]*Medication{}
	}
	return doc.Medications, nil
}

func (m *Manager) saveMedications(meds map[string][]*Medication) error {
	return m.db.Save(medicationsFile, medicationsDoc{Medications: meds})
}

// AddMedication appends a medication for the user, filling defaults for
// start date, category and status.
func (m *Manager) AddMedication(username string, med *Medication) (*Medication, error) {
	meds, err := m.loadMedications()
	if err != nil {
		return nil, err
	}
	now := store.NowISO()
	med.ID = newID()
	if med.StartDate == "" {
		med.StartDate = time.Now().Format("2006-01-02")
	}
	if med.Category == "" {
		med.Category = "西药"
	}
	med.Status = StatusActive
	med.CreatedAt = now
	med.UpdatedAt = now
	meds[username] = append(meds[username], med)
	if err := m.saveMedications(meds); err != nil {
		return nil, err
	}
	return med, nil
}

// Medications returns the user's list, newest first, optionally filtered
// by status and health record.
func (m *Manager) Medications(username, status, recordID string) ([]*Medication, error) {
	meds, err := m.loadMedications()
	if err != nil {
		return nil, err
	}
	out := make([]*Medication, 0, len(meds[username]))
	for _, med := range meds[username] {
		if status != "" && med.Status != status {
			continue
		}
		if recordID != "" && med.RecordID != recordID {
			continue
		}
		out = append(out, med)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt > out[j].CreatedAt })
	return out, nil
}

// UpdateMedication patches one medication. Only known fields are applied;
// the id is never overwritten.
func (m *Manager) UpdateMedication(username, medicationID string, patch map[string]any) (*Medication, error) {
	meds, err := m.loadMedications()
	if err != nil {
		return nil, err
	}
	for _, med := range meds[username] {
		if med.ID != medicationID {
			continue
		}
		applyPatch(med, patch)
		med.UpdatedAt = store.NowISO()
		if err := m.saveMedications(meds); err != nil {
			return nil, err
		}
		return med, nil
	}
	return nil, ErrNotFound
}

func applyPatch(med *Medication, patch map[string]any) {
	for key, value := range patch {
		s, ok := value.(string)
		if !ok {
			continue
		}
		switch key {
		case "name":
			med.Name = s
		case "dosage":
			med.Dosage = s
		case "frequency":
			med.Frequency = s
		case "duration":
			med.Duration = s
		case "start_date":
			med.StartDate = s
		case "end_date":
			med.EndDate = s
		case "notes":
			med.Notes = s
		case "category":
			med.Category = s
		case "prescribing_doctor":
			med.PrescribingDoctor = s
		case "side_effects":
			med.SideEffects = s
		case "record_id":
			med.RecordID = s
		case "status":
			if s == StatusActive || s == StatusCompleted || s == StatusStopped {
				med.Status = s
			}
		}
	}
}

func (m *Manager) DeleteMedication(username, medicationID string) error {
	meds, err := m.loadMedications()
	if err != nil {
		return err
	}
	list := meds[username]
	kept := list[:0]
	for _, med := range list {
		if med.ID != medicationID {
			kept = append(kept, med)
		}
	}
	if len(kept) == len(list) {
		return ErrNotFound
	}
	meds[username] = kept
	return m.saveMedications(meds)
}

func (m *Manager) loadReminders() (map[string][]*Reminder, error) {
	var doc remindersDoc
	if err := m.db.Load(remindersFile, &doc); err != nil {
		return nil, err
	}
	if doc.Reminders == nil {
		doc.Reminders = map[string][]*Reminder{}
	}
	return doc.Reminders, nil
}

func (m *Manager) saveReminders(rems map[string][]*Reminder) error {
	return m.db.Save(remindersFile, remindersDoc{Reminders: rems})
}

// AddReminder appends a reminder. An empty times list falls back to one
// 08:00 slot, an omitted enabled flag means enabled, and the record id is
// inherited from the linked medication.
func (m *Manager) AddReminder(username string, rem *Reminder) (*Reminder, error) {
	rems, err := m.loadReminders()
	if err != nil {
		return nil, err
	}
	rem.ID = newID()
	if len(rem.Times) == 0 {
		rem.Times = []string{"08:00"}
	}
	if rem.ReminderType == "" {
		rem.ReminderType = "daily"
	}
	if rem.Enabled == nil {
		enabled := true
		rem.Enabled = &enabled
	}
	if rem.RecordID == "" && rem.MedicationID != "" {
		if meds, err := m.Medications(username, "", ""); err == nil {
			for _, med := range meds {
				if med.ID == rem.MedicationID {
					rem.RecordID = med.RecordID
					break
				}
			}
		}
	}
	rem.CreatedAt = store.NowISO()
	rem.LastReminded = nil
	rems[username] = append(rems[username], rem)
	if err := m.saveReminders(rems); err != nil {
		return nil, err
	}
	return rem, nil
}

func (m *Manager) Reminders(username, recordID string) ([]*Reminder, error) {
	rems, err := m.loadReminders()
	if err != nil {
		return nil, err
	}
	out := make([]*Reminder, 0, len(rems[username]))
	for _, rem := range rems[username] {
		if recordID != "" && rem.RecordID != recordID {
			continue
		}
		out = append(out, rem)
	}
	return out, nil
}

// UpdateReminder patches one reminder from the request document.
func (m *Manager) UpdateReminder(username, reminderID string, patch map[string]any) (*Reminder, error) {
	rems, err := m.loadReminders()
	if err != nil {
		return nil, err
	}
	for _, rem := range rems[username] {
		if rem.ID != reminderID {
			continue
		}
		for key, value := range patch {
			switch key {
			case "medication_id":
				if s, ok := value.(string); ok {
					rem.MedicationID = s
				}
			case "medication_name":
				if s, ok := value.(string); ok {
					rem.MedicationName = s
				}
			case "times":
				if items, ok := value.([]any); ok {
					times := make([]string, 0, len(items))
					for _, it := range items {
						if s, ok := it.(string); ok {
							times = append(times, s)
						}
					}
					rem.Times = times
				}
			case "reminder_type":
				if s, ok := value.(string); ok {
					rem.ReminderType = s
				}
			case "interval_days":
				rem.IntervalDays = value
			case "custom_schedule":
				rem.CustomSchedule = value
			case "enabled":
				if b, ok := value.(bool); ok {
					rem.Enabled = &b
				}
			case "last_reminded":
				if s, ok := value.(string); ok {
					rem.LastReminded = &s
				}
			}
		}
		if err := m.saveReminders(rems); err != nil {
			return nil, err
		}
		return rem, nil
	}
	return nil, ErrNotFound
}

func (m *Manager) DeleteReminder(username, reminderID string) error {
	rems, err := m.loadReminders()
	if err != nil {
		return err
	}
	list := rems[username]
	kept := list[:0]
	for _, rem := range list {
		if rem.ID != reminderID {
			kept = append(kept, rem)
		}
	}
	if len(kept) == len(list) {
		return ErrNotFound
	}
	rems[username] = kept
	return m.saveReminders(rems)
}

func (m *Manager) loadIntakes() (map[string][]*Intake, error) {
	var doc intakesDoc
	if err := m.db.Load(intakesFile, &doc); err != nil {
		return nil, err
	}
	if doc.Records == nil {
		doc.Records = map[string][]*Intake{}
	}
	return doc.Records, nil
}

// RecordIntake logs one taken dose.
func (m *Manager) RecordIntake(username string, intake *Intake) (*Intake, error) {
	records, err := m.loadIntakes()
	if err != nil {
		return nil, err
	}
	intake.ID = newID()
	if intake.TakenAt == "" {
		intake.TakenAt = store.NowISO()
	}
	intake.CreatedAt = store.NowISO()
	records[username] = append(records[username], intake)
	if err := m.db.Save(intakesFile, intakesDoc{Records: records}); err != nil {
		return nil, err
	}
	return intake, nil
}

// Intakes returns the user's intake log, newest first. All filters are
// optional; the date bounds compare lexically against taken_at.
func (m *Manager) Intakes(username, medicationID, startDate, endDate, recordID string) ([]*Intake, error) {
	records, err := m.loadIntakes()
	if err != nil {
		return nil, err
	}
	out := make([]*Intake, 0, len(records[username]))
	for _, r := range records[username] {
		if medicationID != "" && r.MedicationID != medicationID {
			continue
		}
		if startDate != "" && r.TakenAt < startDate {
			continue
		}
		if endDate != "" && r.TakenAt > endDate {
			continue
		}
		if recordID != "" && r.RecordID != recordID {
			continue
		}
		out = append(out, r)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].TakenAt > out[j].TakenAt })
	return out, nil
}

// ScheduleEntry is one dose slot in the today view.
type ScheduleEntry struct {
	MedicationID   string `json:"medication_id"`
	MedicationName string `json:"medication_name"`
	Dosage         string `json:"dosage"`
	Time           string `json:"time"`
	ReminderID     string `json:"reminder_id"`
	Taken          bool   `json:"taken"`
}

// TodaySchedule expands the enabled reminders of active medications into
// the day's dose slots, ordered by time. Doses already logged today cover
// the earliest slots of their medication.
func (m *Manager) TodaySchedule(username, recordID string) ([]*ScheduleEntry, error) {
	meds, err := m.Medications(username, StatusActive, recordID)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*Medication, len(meds))
	for _, med := range meds {
		byID[med.ID] = med
	}
	rems, err := m.Reminders(username, recordID)
	if err != nil {
		return nil, err
	}
	today := time.Now().Format("2006-01-02")
	intakes, err := m.Intakes(username, "", today, today+"T23:59:59.999999", recordID)
	if err != nil {
		return nil, err
	}
	takenLeft := map[string]int{}
	for _, it := range intakes {
		takenLeft[it.MedicationID]++
	}
	out := []*ScheduleEntry{}
	for _, rem := range rems {
		if rem.Enabled != nil && !*rem.Enabled {
			continue
		}
		med, ok := byID[rem.MedicationID]
		if !ok {
			continue
		}
		for _, slot := range rem.Times {
			out = append(out, &ScheduleEntry{
				MedicationID:   med.ID,
				MedicationName: med.Name,
				Dosage:         med.Dosage,
				Time:           slot,
				ReminderID:     rem.ID,
			})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	for _, entry := range out {
		if takenLeft[entry.MedicationID] > 0 {
			entry.Taken = true
			takenLeft[entry.MedicationID]--
		}
	}
	return out, nil
}

// expectedDailyDoses estimates doses per day from the free-text frequency,
// e.g. "每日3次" counts as three.
func expectedDailyDoses(frequency string) int {
	switch {
	case strings.Contains(frequency, "3"):
		return 3
	case strings.Contains(frequency, "2"):
		return 2
	default:
		return 1
	}
}

// Adherence computes the intake rate over the trailing window.
func (m *Manager) Adherence(username, recordID string, days int) (AdherenceStats, error) {
	meds, err := m.Medications(username, StatusActive, recordID)
	if err != nil {
		return AdherenceStats{}, err
	}
	startDate := time.Now().UTC().AddDate(0, 0, -days).Format("2006-01-02T15:04:05.999999")
	intakes, err := m.Intakes(username, "", startDate, "", recordID)
	if err != nil {
		return AdherenceStats{}, err
	}
	expected := 0
	for _, med := range meds {
		expected += days * expectedDailyDoses(med.Frequency)
	}
	rate := 0.0
	if expected > 0 {
		rate = math.Round(float64(len(intakes))/float64(expected)*100*100) / 100
	}
	return AdherenceStats{
		TotalMedications:   len(meds),
		TotalDosesExpected: expected,
		TotalDosesTaken:    len(intakes),
		AdherenceRate:      rate,
		Days:               days,
	}, nil
}
