package server

import (
	"errors"
	"sync"

	"spacearena/store"
)

// ErrConcurrentSession 同一公网地址已有在线会话
var ErrConcurrentSession = errors.New("concurrent session limit")

// AddressRegistry 公网地址 → 连接 ID；回环地址不受单会话限制，也不入表
type AddressRegistry struct {
	mu     sync.Mutex
	active map[string]ConnID
}

func NewAddressRegistry() *AddressRegistry {
	return &AddressRegistry{active: make(map[string]ConnID)}
}

// Register 占用地址；已被占用时返回 ErrConcurrentSession
func (r *AddressRegistry) Register(address string, id ConnID) error {
	if store.IsLoopback(address) {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.active[address]; ok {
		return ErrConcurrentSession
	}
	r.active[address] = id
	return nil
}

// Release 释放地址
func (r *AddressRegistry) Release(address string) {
	r.mu.Lock()
	delete(r.active, address)
	r.mu.Unlock()
}

// Holder 返回占用地址的连接
func (r *AddressRegistry) Holder(address string) (ConnID, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id, ok := r.active[address]
	return id, ok
}

func (r *AddressRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.active)
}
