package main

import (
	"context"
	"sync"
	"time"
)

// RoomManager holds the set of live rooms keyed by session ID, so each
// session is its own isolated actor. Rooms share nothing but the read-only
// stage registry.
type RoomManager struct {
	mu        sync.Mutex
	rooms     map[string]*Room
	cfg       *Config
	validator SessionValidator
}

func newRoomManager(ctx context.Context, cfg *Config, validator SessionValidator) *RoomManager {
	rm := &RoomManager{
		rooms:     make(map[string]*Room),
		cfg:       cfg,
		validator: validator,
	}
	if cfg.sessionTimeout > 0 {
		go rm.reaperLoop(ctx)
	}
	return rm
}

// getRoom returns the live room for a session, creating it on the first
// join. The start stage is honored only at creation time.
func (rm *RoomManager) getRoom(sessionID string, questionnaire Questionnaire, startStage int) *Room {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if room, ok := rm.rooms[sessionID]; ok {
		return room
	}

	room := newRoomAtStage(rm.cfg, rm, rm.validator, sessionID, questionnaire, startStage)
	rm.rooms[sessionID] = room
	go room.run()
	logf(rm.cfg, "ROOMS: Created room %s", sessionID)
	return room
}

func (rm *RoomManager) remove(sessionID string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	delete(rm.rooms, sessionID)
}

// reaperLoop periodically ends rooms that have been idle longer than the
// configured session timeout.
func (rm *RoomManager) reaperLoop(ctx context.Context) {
	ticker := time.NewTicker(rm.cfg.sessionTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cutoff := time.Now().Add(-rm.cfg.sessionTimeout)

		rm.mu.Lock()
		stale := make([]*Room, 0)
		for _, room := range rm.rooms {
			if room.idleSince().Before(cutoff) {
				stale = append(stale, room)
			}
		}
		rm.mu.Unlock()

		for _, room := range stale {
			room.post(stopRoom{})
		}
	}
}
