// Package inmemdb implements the core repositories in memory, for tests and local runs without postgres.
package inmemdb

import (
	"sync"

	"github.com/abiaedu/portal/core/approval"
	"github.com/abiaedu/portal/core/district"
	"github.com/abiaedu/portal/core/submission"
	"github.com/abiaedu/portal/core/user"
)

type DB struct {
	mu          sync.RWMutex
	districts   []district.District
	submissions map[int]*submission.Submission
	facts       map[int]*approval.Fact // by district ID
	activity    []approval.Activity
	users       map[string]*user.User
	pkCount     int
}

// Open returns an empty database seeded with the districts.
func Open() *DB {
	db := &DB{}
	db.Reset()
	return db
}

// Reset drops every row but the seeded districts.
func (db *DB) Reset() {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.districts = make([]district.District, 0, len(district.Names))
	for i, name := range district.Names {
		db.districts = append(db.districts, district.District{ID: i + 1, Name: name})
	}
	db.submissions = make(map[int]*submission.Submission)
	db.facts = make(map[int]*approval.Fact)
	db.activity = nil
	db.users = make(map[string]*user.User)
	db.pkCount = 0
}

func (db *DB) nextPK() int {
	db.pkCount++
	return db.pkCount
}

func (db *DB) districtName(id int) string {
	for _, d := range db.districts {
		if d.ID == id {
			return d.Name
		}
	}
	return ""
}

func copySubmission(sub submission.Submission) submission.Submission {
	sub.Facilities = append([]string{}, sub.Facilities...)
	return sub
}
