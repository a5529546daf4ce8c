package wsgateway

import (
	"testing"
)

func TestConnectionRegistry_AddRemove(t *testing.T) {
	registry := NewConnectionRegistry()

	conn := &Connection{
		ID:      "conn-1",
		Subject: "trader-1",
	}

	registry.Add(conn)

	retrieved, exists := registry.Get("conn-1")
	if !exists {
		t.Fatal("Expected connection to exist")
	}
	if retrieved.ID != "conn-1" {
		t.Errorf("Expected connection ID %s, got %s", "conn-1", retrieved.ID)
	}

	if registry.Count() != 1 {
		t.Errorf("Expected 1 connection, got %d", registry.Count())
	}

	if !registry.Remove("conn-1") {
		t.Error("Expected first remove to report the connection")
	}
	if registry.Remove("conn-1") {
		t.Error("Expected second remove to be a no-op")
	}

	if _, exists = registry.Get("conn-1"); exists {
		t.Error("Expected connection to be removed")
	}
	if registry.Count() != 0 {
		t.Errorf("Expected 0 connections, got %d", registry.Count())
	}
	if registry.CountBySubject("trader-1") != 0 {
		t.Error("Expected subject index to be cleaned up")
	}
}

func TestConnectionRegistry_CountBySubject(t *testing.T) {
	registry := NewConnectionRegistry()

	registry.Add(&Connection{ID: "conn-1", Subject: "trader-1"})
	registry.Add(&Connection{ID: "conn-2", Subject: "trader-1"})
	registry.Add(&Connection{ID: "conn-3", Subject: "trader-2"})

	if count := registry.CountBySubject("trader-1"); count != 2 {
		t.Errorf("Expected 2 connections for trader-1, got %d", count)
	}
	if count := registry.CountBySubject("trader-3"); count != 0 {
		t.Errorf("Expected 0 connections for trader-3, got %d", count)
	}

	registry.Remove("conn-1")
	if count := registry.CountBySubject("trader-1"); count != 1 {
		t.Errorf("Expected 1 connection for trader-1, got %d", count)
	}
}

func TestConnectionRegistry_GetAll(t *testing.T) {
	registry := NewConnectionRegistry()

	registry.Add(&Connection{ID: "conn-1", Subject: "trader-1"})
	registry.Add(&Connection{ID: "conn-2", Subject: "trader-2"})

	all := registry.GetAll()
	if len(all) != 2 {
		t.Errorf("Expected 2 connections, got %d", len(all))
	}
}
