package fakeapi

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

type organization struct {
	ID       string
	NPI      string
	Resource map[string]interface{}
}

type practitioner struct {
	ID       string
	NPI      string
	Resource map[string]interface{}
}

type patient struct {
	ID       string
	MBI      string
	Resource map[string]interface{}
}

type member struct {
	PatientID string
	Start     time.Time
	End       time.Time
	Inactive  bool
}

type roster struct {
	ID      string
	NPI     string
	Members []member
}

type dataFile struct {
	Name     string
	Type     string
	Body     []byte
	Count    int
	Modified time.Time
}

type exportJob struct {
	ID        string
	RosterID  string
	Request   string
	Since     *time.Time
	Patients  []*patient
	Polls     int
	Submitted time.Time
	Completed time.Time
	Output    []*dataFile
	Errors    []*dataFile
}

// store holds everything the fake API knows. All access goes through its methods, which are
// safe for concurrent use.
type store struct {
	mu            sync.Mutex
	organizations map[string]*organization
	practitioners map[string]*practitioner
	patients      map[string]*patient
	rosters       map[string]*roster
	jobs          map[string]*exportJob
	files         map[string]*dataFile
}

func newStore() *store {
	return &store{
		organizations: make(map[string]*organization),
		practitioners: make(map[string]*practitioner),
		patients:      make(map[string]*patient),
		rosters:       make(map[string]*roster),
		jobs:          make(map[string]*exportJob),
		files:         make(map[string]*dataFile),
	}
}

func newID() string {
	return uuid.NewString()
}

func (s *store) upsertOrganization(npi string, resource map[string]interface{}) *organization {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.organizations {
		if npi != "" && o.NPI == npi {
			o.Resource = resource
			return o
		}
	}
	o := &organization{ID: newID(), NPI: npi, Resource: resource}
	s.organizations[o.ID] = o
	return o
}

func (s *store) organization(id string) (*organization, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.organizations[id]
	return o, ok
}

func (s *store) updateOrganization(id string, update func(*organization)) (*organization, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.organizations[id]
	if ok {
		update(o)
	}
	return o, ok
}

func (s *store) upsertPractitioner(npi string, resource map[string]interface{}) *practitioner {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.practitioners {
		if p.NPI == npi {
			p.Resource = resource
			return p
		}
	}
	p := &practitioner{ID: newID(), NPI: npi, Resource: resource}
	s.practitioners[p.ID] = p
	return p
}

func (s *store) practitionersByNPI(npi string) []*practitioner {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ret []*practitioner
	for _, p := range s.practitioners {
		if p.NPI == npi {
			ret = append(ret, p)
		}
	}
	return ret
}

// deletePractitioner removes the practitioner and every roster attributed to it.
func (s *store) deletePractitioner(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.practitioners[id]
	if !ok {
		return false
	}
	delete(s.practitioners, id)
	for rid, r := range s.rosters {
		if r.NPI == p.NPI {
			delete(s.rosters, rid)
		}
	}
	return true
}

func (s *store) upsertPatient(mbi string, resource map[string]interface{}) *patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.patients {
		if p.MBI == mbi {
			p.Resource = resource
			return p
		}
	}
	p := &patient{ID: newID(), MBI: mbi, Resource: resource}
	s.patients[p.ID] = p
	return p
}

func (s *store) patient(id string) (*patient, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.patients[id]
	return p, ok
}

func (s *store) patientsByMBI(mbi string) []*patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ret []*patient
	for _, p := range s.patients {
		if p.MBI == mbi {
			ret = append(ret, p)
		}
	}
	return ret
}

// deletePatient removes the patient and its membership in every roster.
func (s *store) deletePatient(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.patients[id]; !ok {
		return false
	}
	delete(s.patients, id)
	for _, r := range s.rosters {
		kept := r.Members[:0]
		for _, m := range r.Members {
			if m.PatientID != id {
				kept = append(kept, m)
			}
		}
		r.Members = kept
	}
	return true
}

// missingPatients returns how many of the ids do not name a known patient.
func (s *store) missingPatients(ids []string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range ids {
		if _, ok := s.patients[id]; !ok {
			n++
		}
	}
	return n
}

func (s *store) createRoster(r *roster) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.ID = newID()
	s.rosters[r.ID] = r
}

func (s *store) roster(id string) (roster, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rosters[id]
	if !ok {
		return roster{}, false
	}
	snapshot := *r
	snapshot.Members = append([]member(nil), r.Members...)
	return snapshot, true
}

func (s *store) rostersByNPI(npi string) []roster {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ret []roster
	for _, r := range s.rosters {
		if r.NPI == npi {
			snapshot := *r
			snapshot.Members = append([]member(nil), r.Members...)
			ret = append(ret, snapshot)
		}
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].ID < ret[j].ID })
	return ret
}

func (s *store) updateRoster(id string, update func(*roster)) (roster, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rosters[id]
	if !ok {
		return roster{}, false
	}
	update(r)
	snapshot := *r
	snapshot.Members = append([]member(nil), r.Members...)
	return snapshot, true
}

// activePatients returns the patients that are active members of the roster.
func (s *store) activePatients(r roster) []*patient {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ret []*patient
	for _, m := range r.Members {
		if p, ok := s.patients[m.PatientID]; ok && !m.Inactive {
			ret = append(ret, p)
		}
	}
	return ret
}

func (s *store) createJob(j *exportJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j.ID = newID()
	s.jobs[j.ID] = j
}

// pollJob counts a status request and, once the job has been polled enough times, completes it
// by calling complete exactly once.
func (s *store) pollJob(id string, pendingPolls int, complete func(*exportJob)) (exportJob, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return exportJob{}, false
	}
	j.Polls++
	if j.Polls > pendingPolls && j.Completed.IsZero() {
		complete(j)
		for _, f := range append(append([]*dataFile(nil), j.Output...), j.Errors...) {
			s.files[f.Name] = f
		}
	}
	return *j, true
}

func (s *store) file(name string) (*dataFile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.files[name]
	return f, ok
}
