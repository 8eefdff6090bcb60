package repositories

import (
	"batepapo/errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParticipantRepository_Join_Twice_Same_Name(t *testing.T) {
	req := require.New(t)
	repository := NewParticipantRepository()
	at := time.Now().UTC()

	// When alice joins
	p, err := repository.Join("alice", at)

	// Then she is registered
	req.NoError(err)
	req.Equal("alice", p.Name)
	req.Equal(at, p.LastSeen)

	// When alice joins again
	_, err = repository.Join("alice", at.Add(time.Second))

	// Then the name is rejected and the first session is untouched
	req.ErrorIs(err, errors.ErrDuplicateName)
	stored, err := repository.Get("alice")
	req.NoError(err)
	req.Equal(at, stored.LastSeen)
}

func TestParticipantRepository_Names_Are_Case_Sensitive(t *testing.T) {
	req := require.New(t)
	repository := NewParticipantRepository()
	at := time.Now().UTC()

	_, err := repository.Join("alice", at)
	req.NoError(err)
	_, err = repository.Join("Alice", at)
	req.NoError(err)
	_, err = repository.Join("alice ", at)
	req.NoError(err)

	participants, err := repository.List()
	req.NoError(err)
	req.Len(participants, 3)
}

func TestParticipantRepository_Concurrent_Join_Exactly_One_Wins(t *testing.T) {
	req := require.New(t)
	repository := NewParticipantRepository()
	at := time.Now().UTC()
	const contenders = 64

	var wg sync.WaitGroup
	results := make(chan error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repository.Join("alice", at)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var succeeded, duplicated int
	for err := range results {
		switch {
		case err == nil:
			succeeded++
		case err == errors.ErrDuplicateName:
			duplicated++
		}
	}
	req.Equal(1, succeeded)
	req.Equal(contenders-1, duplicated)
}

func TestParticipantRepository_Heartbeat(t *testing.T) {
	req := require.New(t)
	repository := NewParticipantRepository()
	at := time.Now().UTC()
	_, err := repository.Join("alice", at)
	req.NoError(err)

	// When alice pings later
	req.NoError(repository.Heartbeat("alice", at.Add(5*time.Second)))

	// Then her last seen moves forward
	p, err := repository.Get("alice")
	req.NoError(err)
	req.Equal(at.Add(5*time.Second), p.LastSeen)

	// And unknown participants must join first
	req.ErrorIs(repository.Heartbeat("bob", at), errors.ErrParticipantNotFound)
}

func TestParticipantRepository_List_Keeps_Join_Order_And_Is_A_Snapshot(t *testing.T) {
	req := require.New(t)
	repository := NewParticipantRepository()
	at := time.Now().UTC()
	for i := 0; i < 5; i++ {
		_, err := repository.Join(fmt.Sprintf("user_%d", i), at)
		req.NoError(err)
	}

	snapshot, err := repository.List()
	req.NoError(err)
	req.NoError(repository.Heartbeat("user_0", at.Add(time.Minute)))

	req.Len(snapshot, 5)
	req.Equal("user_0", snapshot[0].Name)
	req.Equal("user_4", snapshot[4].Name)
	req.Equal(at, snapshot[0].LastSeen)
}

func TestParticipantRepository_Remove_Is_Idempotent(t *testing.T) {
	req := require.New(t)
	repository := NewParticipantRepository()
	_, err := repository.Join("alice", time.Now().UTC())
	req.NoError(err)

	removed, err := repository.Remove("alice")
	req.NoError(err)
	req.True(removed)

	removed, err = repository.Remove("alice")
	req.NoError(err)
	req.False(removed)

	// And the name is free again
	_, err = repository.Join("alice", time.Now().UTC())
	req.NoError(err)
}

func TestParticipantRepository_RemoveIdle_Honors_Late_Heartbeat(t *testing.T) {
	req := require.New(t)
	repository := NewParticipantRepository()
	at := time.Now().UTC()
	_, err := repository.Join("alice", at)
	req.NoError(err)
	_, err = repository.Join("bob", at)
	req.NoError(err)
	cutoff := at.Add(time.Second)

	// Given bob renewed after the cutoff
	req.NoError(repository.Heartbeat("bob", cutoff.Add(time.Millisecond)))

	// When both are evicted against the same cutoff
	removedAlice, err := repository.RemoveIdle("alice", cutoff)
	req.NoError(err)
	removedBob, err := repository.RemoveIdle("bob", cutoff)
	req.NoError(err)

	// Then only alice is gone
	req.True(removedAlice)
	req.False(removedBob)
	_, err = repository.Get("bob")
	req.NoError(err)

	removed, err := repository.RemoveIdle("ghost", cutoff)
	req.NoError(err)
	req.False(removed)
}
