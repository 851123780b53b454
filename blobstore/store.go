// Package blobstore хранит HTML шаблонов и системную инструкцию
package blobstore

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound объект отсутствует в хранилище
var ErrNotFound = errors.New("blob not found")

// Store хранилище объектов по имени
type Store interface {
	Read(ctx context.Context, name string) ([]byte, error)
	Write(ctx context.Context, name string, data []byte, contentType string) error
	Exists(ctx context.Context, name string) (bool, error)
}

// MemoryStore хранилище в памяти для локального запуска и тестов
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]memoryObject
}

type memoryObject struct {
	data        []byte
	contentType string
}

// NewMemoryStore создает пустое хранилище в памяти
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]memoryObject)}
}

func (m *MemoryStore) Read(ctx context.Context, name string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	obj, ok := m.objects[name]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), obj.data...), nil
}

func (m *MemoryStore) Write(ctx context.Context, name string, data []byte, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.objects[name] = memoryObject{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.objects[name]
	return ok, nil
}

// ContentType возвращает тип содержимого сохраненного объекта
func (m *MemoryStore) ContentType(name string) string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.objects[name].contentType
}
