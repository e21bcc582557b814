package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwalitptl/hospital-api/internal/model"
	"github.com/jwalitptl/hospital-api/internal/repository"
	apperrors "github.com/jwalitptl/hospital-api/pkg/errors"
)

const testDate = "2025-03-05"

func newRepos(t *testing.T) *repository.Repositories {
	t.Helper()
	return NewRepositories(requireDB(t))
}

func createDoctor(t *testing.T, repos *repository.Repositories) *model.DoctorProfile {
	t.Helper()
	doc := &model.DoctorProfile{
		Name:          "Dr. Rao",
		Email:         uuid.NewString() + "@clinic.test",
		AvailableDays: []string{"Monday", "Wednesday"},
		WorkStart:     "09:00 AM",
		WorkEnd:       "12:00 PM",
		SlotDuration:  30,
		OnlineFee:     100,
		OfflineFee:    80,
	}
	require.NoError(t, repos.Doctors.Create(context.Background(), doc))
	return doc
}

func createPatient(t *testing.T, repos *repository.Repositories) *model.Patient {
	t.Helper()
	p := &model.Patient{Name: "Asha", Phone: "+15550100"}
	require.NoError(t, repos.Patients.Create(context.Background(), p))
	return p
}

// newSchedule builds a schedule with one slot per [start, end) minute pair
func newSchedule(doctorID uuid.UUID, bounds ...[2]int) *model.DaySchedule {
	s := &model.DaySchedule{
		ID:           uuid.New(),
		DoctorID:     doctorID,
		Date:         testDate,
		WorkStart:    "09:00 AM",
		WorkEnd:      "12:00 PM",
		SlotDuration: 30,
		IsAvailable:  true,
	}
	s.Slots = slotGrid(s.ID, bounds...)
	return s
}

func slotGrid(scheduleID uuid.UUID, bounds ...[2]int) []model.Slot {
	slots := make([]model.Slot, 0, len(bounds))
	for i, b := range bounds {
		slots = append(slots, model.Slot{
			ID:          uuid.New(),
			ScheduleID:  scheduleID,
			Position:    i,
			Start:       fmt.Sprintf("%02d:%02d", b[0]/60, b[0]%60),
			End:         fmt.Sprintf("%02d:%02d", b[1]/60, b[1]%60),
			StartMinute: b[0],
			EndMinute:   b[1],
			Duration:    b[1] - b[0],
			OnlineFee:   100,
			OfflineFee:  80,
		})
	}
	return slots
}

func bookable(t *testing.T, repos *repository.Repositories, bounds ...[2]int) *model.DaySchedule {
	t.Helper()
	doc := createDoctor(t, repos)
	sched := newSchedule(doc.ID, bounds...)
	created, err := repos.Schedules.CreateIfAbsent(context.Background(), sched)
	require.NoError(t, err)
	require.True(t, created)
	return sched
}

func TestMigrateIsRepeatable(t *testing.T) {
	db := requireDB(t)

	names, err := Migrate(context.Background(), db)
	require.NoError(t, err)
	assert.Contains(t, names, "002_token_counters_outbox_claims.sql")
}

func TestReserveSlotHasExactlyOneWinner(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	sched := bookable(t, repos, [2]int{540, 570})
	match := model.SlotMatch{StartMinute: 540, EndMinute: 570}

	const callers = 12
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		wins int
		errs []error
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repos.Schedules.ReserveSlot(ctx, sched.ID, match)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
				return
			}
			errs = append(errs, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	require.Len(t, errs, callers-1)
	for _, err := range errs {
		assert.ErrorIs(t, err, apperrors.ErrSlotAlreadyBooked)
	}
}

func TestReserveSlotErrors(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	sched := bookable(t, repos, [2]int{540, 570})

	_, err := repos.Schedules.ReserveSlot(ctx, sched.ID, model.SlotMatch{StartMinute: 600, EndMinute: 630})
	assert.ErrorIs(t, err, apperrors.ErrSlotNotFound)

	_, err = repos.Schedules.SetAvailability(ctx, sched.DoctorID, testDate, testDate, false)
	require.NoError(t, err)
	_, err = repos.Schedules.ReserveSlot(ctx, sched.ID, model.SlotMatch{StartMinute: 540, EndMinute: 570})
	assert.ErrorIs(t, err, apperrors.ErrSlotUnavailable)
}

func TestCreateIfAbsentConcurrentCallersConverge(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	doc := createDoctor(t, repos)

	const callers = 8
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		created int
	)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repos.Schedules.CreateIfAbsent(ctx, newSchedule(doc.ID, [2]int{540, 570}, [2]int{570, 600}))
			assert.NoError(t, err)
			if ok {
				mu.Lock()
				created++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, created)

	sched, err := repos.Schedules.GetByDoctorAndDate(ctx, doc.ID, testDate)
	require.NoError(t, err)
	require.Len(t, sched.Slots, 2)
	for _, s := range sched.Slots {
		assert.Equal(t, sched.ID, s.ScheduleID)
	}
}

func TestReplaceSlotsKeepsBookedSlot(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	sched := bookable(t, repos, [2]int{540, 570}, [2]int{570, 600})

	booked, err := repos.Schedules.ReserveSlot(ctx, sched.ID, model.SlotMatch{StartMinute: 540, EndMinute: 570})
	require.NoError(t, err)

	sched.WorkEnd = "10:30 AM"
	sched.Slots = slotGrid(sched.ID, [2]int{540, 570}, [2]int{600, 630})
	require.NoError(t, repos.Schedules.ReplaceSlots(ctx, sched))

	got, err := repos.Schedules.GetByDoctorAndDate(ctx, sched.DoctorID, testDate)
	require.NoError(t, err)
	require.Len(t, got.Slots, 2)
	assert.Equal(t, booked.ID, got.Slots[0].ID)
	assert.True(t, got.Slots[0].IsBooked)
	assert.Equal(t, 600, got.Slots[1].StartMinute)
	assert.False(t, got.Slots[1].IsBooked)
	assert.Equal(t, "10:30 AM", got.WorkEnd)

	// a grid without the booked slot is refused and nothing changes
	sched.WorkEnd = "11:00 AM"
	sched.Slots = slotGrid(sched.ID, [2]int{600, 630}, [2]int{630, 660})
	err = repos.Schedules.ReplaceSlots(ctx, sched)
	assert.ErrorIs(t, err, apperrors.ErrSlotAlreadyBooked)

	after, err := repos.Schedules.GetByDoctorAndDate(ctx, sched.DoctorID, testDate)
	require.NoError(t, err)
	assert.Equal(t, got.Slots, after.Slots)
	assert.Equal(t, "10:30 AM", after.WorkEnd)
}

func TestDeleteScheduleRefusedWhileBooked(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	sched := bookable(t, repos, [2]int{540, 570})
	match := model.SlotMatch{StartMinute: 540, EndMinute: 570}

	_, err := repos.Schedules.ReserveSlot(ctx, sched.ID, match)
	require.NoError(t, err)
	assert.ErrorIs(t, repos.Schedules.Delete(ctx, sched.ID), apperrors.ErrSlotAlreadyBooked)

	_, err = repos.Schedules.ReleaseSlot(ctx, sched.ID, match)
	require.NoError(t, err)
	require.NoError(t, repos.Schedules.Delete(ctx, sched.ID))
	assert.ErrorIs(t, repos.Schedules.Delete(ctx, sched.ID), apperrors.ErrNoScheduleForDate)
}

func createAppointment(t *testing.T, repos *repository.Repositories, doctorID, patientID uuid.UUID, start int) *model.Appointment {
	t.Helper()
	a := &model.Appointment{
		PatientID:        patientID,
		DoctorID:         doctorID,
		AppointmentDate:  testDate,
		SlotID:           uuid.New(),
		SlotStart:        fmt.Sprintf("%02d:%02d", start/60, start%60),
		SlotEnd:          fmt.Sprintf("%02d:%02d", (start+30)/60, (start+30)%60),
		StartMinute:      start,
		EndMinute:        start + 30,
		ConsultationType: model.ConsultationOffline,
		Status:           model.AppointmentStatusPending,
		Fee:              80,
	}
	require.NoError(t, repos.Appointments.Create(context.Background(), a))
	return a
}

func confirm(t *testing.T, repos *repository.Repositories, id uuid.UUID) int {
	t.Helper()
	a, err := repos.Appointments.Confirm(context.Background(), id, model.AppointmentStatusPending, nil)
	require.NoError(t, err)
	require.NotNil(t, a.TokenNumber)
	return *a.TokenNumber
}

func TestTokensAreNotReissuedAfterDelete(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	doc := createDoctor(t, repos)
	patient := createPatient(t, repos)

	a := createAppointment(t, repos, doc.ID, patient.ID, 540)
	b := createAppointment(t, repos, doc.ID, patient.ID, 570)
	c := createAppointment(t, repos, doc.ID, patient.ID, 600)

	assert.Equal(t, 1, confirm(t, repos, a.ID))
	assert.Equal(t, 2, confirm(t, repos, b.ID))

	require.NoError(t, repos.Appointments.Delete(ctx, a.ID))
	assert.Equal(t, 3, confirm(t, repos, c.ID))

	// reconfirming keeps the token already issued
	_, err := repos.Appointments.TransitionStatus(ctx, b.ID, model.AppointmentStatusConfirmed, model.AppointmentStatusPending, nil)
	require.NoError(t, err)
	assert.Equal(t, 2, confirm(t, repos, b.ID))
}

func TestConcurrentConfirmsIssueDistinctTokens(t *testing.T) {
	repos := newRepos(t)
	doc := createDoctor(t, repos)
	patient := createPatient(t, repos)

	const n = 6
	ids := make([]uuid.UUID, n)
	for i := range ids {
		ids[i] = createAppointment(t, repos, doc.ID, patient.ID, 540+30*i).ID
	}

	tokens := make([]int, n)
	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id uuid.UUID) {
			defer wg.Done()
			a, err := repos.Appointments.Confirm(context.Background(), id, model.AppointmentStatusPending, nil)
			if assert.NoError(t, err) && assert.NotNil(t, a.TokenNumber) {
				tokens[i] = *a.TokenNumber
			}
		}(i, id)
	}
	wg.Wait()

	sort.Ints(tokens)
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, tokens)
}

func TestApprovedOn(t *testing.T) {
	repos := newRepos(t)
	ctx := context.Background()
	doc := createDoctor(t, repos)

	leave := &model.LeaveRequest{
		DoctorID:  doc.ID,
		StartDate: "2025-03-05",
		EndDate:   "2025-03-07",
		Type:      model.LeaveTypeCasual,
		Duration:  model.LeaveDurationFullDay,
	}
	require.NoError(t, repos.Leaves.Create(ctx, leave))

	on, err := repos.Leaves.ApprovedOn(ctx, doc.ID, "2025-03-06")
	require.NoError(t, err)
	assert.False(t, on, "pending leave does not block")

	_, err = repos.Leaves.Decide(ctx, leave.ID, model.LeaveStatusApproved, uuid.New())
	require.NoError(t, err)

	for date, want := range map[string]bool{
		"2025-03-04": false,
		"2025-03-05": true,
		"2025-03-07": true,
		"2025-03-08": false,
	} {
		on, err := repos.Leaves.ApprovedOn(ctx, doc.ID, date)
		require.NoError(t, err)
		assert.Equal(t, want, on, date)
	}
}

func resetOutbox(t *testing.T) *repository.Repositories {
	t.Helper()
	db := requireDB(t)
	_, err := db.Exec(`TRUNCATE outbox_events`)
	require.NoError(t, err)
	return NewRepositories(db)
}

func seedOutbox(t *testing.T, repos *repository.Repositories, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		require.NoError(t, repos.Outbox.Create(context.Background(), &model.OutboxEvent{
			EventType: model.EventNotificationRequested,
			Payload:   json.RawMessage(fmt.Sprintf(`{"n":%d}`, i)),
		}))
	}
}

func TestOutboxClaimsAreExclusive(t *testing.T) {
	repos := resetOutbox(t)
	ctx := context.Background()
	seedOutbox(t, repos, 20)

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[uuid.UUID]int)
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 5; i++ {
				events, err := repos.Outbox.GetPendingEvents(ctx, 3)
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				for _, e := range events {
					seen[e.ID]++
					assert.Equal(t, model.OutboxStatusProcessing, e.Status)
					assert.NotNil(t, e.ClaimedAt)
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, 20)
	for id, n := range seen {
		assert.Equal(t, 1, n, "event %s claimed more than once", id)
	}

	left, err := repos.Outbox.GetPendingEvents(ctx, 50)
	require.NoError(t, err)
	assert.Empty(t, left)
}

func TestOutboxReclaimsStaleClaims(t *testing.T) {
	repos := resetOutbox(t)
	ctx := context.Background()
	seedOutbox(t, repos, 1)

	claimed, err := repos.Outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)

	_, err = testDB.Exec(`UPDATE outbox_events SET claimed_at = NOW() - $1::float8 * INTERVAL '1 second' WHERE id = $2`,
		repository.OutboxClaimLease.Seconds()+1, claimed[0].ID)
	require.NoError(t, err)

	again, err := repos.Outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, claimed[0].ID, again[0].ID)
	assert.Equal(t, 2, again[0].RetryCount)

	require.NoError(t, repos.Outbox.UpdateStatus(ctx, again[0].ID, model.OutboxStatusProcessed, nil))
	done, err := repos.Outbox.GetPendingEvents(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, done)
}
