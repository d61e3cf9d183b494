package server

import (
	"fmt"

	"github.com/lwm2m-harness/lwm2m-go/pkg/log"
	"github.com/lwm2m-harness/lwm2m-go/pkg/persistence"
)

// Registrations returns copies of the current registrations sorted by
// location.
func (s *Server) Registrations() []*Registration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.regs.list()
}

// Registration returns the registration of endpoint.
func (s *Server) Registration(endpoint string) (*Registration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.regs.byEndpoint(endpoint)
	if r == nil {
		return nil, false
	}
	return r.clone(), true
}

// Sends returns the packs received through Send.
func (s *Server) Sends() []SendRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SendRecord(nil), s.sends...)
}

// BootstrapRequests returns the endpoint names that asked for bootstrap.
func (s *Server) BootstrapRequests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.bootstraps...)
}

// AddServerAccount records a server account provisioned during bootstrap.
// An account with the same short server ID is replaced.
func (s *Server) AddServerAccount(acct persistence.ServerAccount) {
	s.mu.Lock()
	replaced := false
	for i := range s.accounts {
		if s.accounts[i].ShortServerID == acct.ShortServerID {
			s.accounts[i] = acct
			replaced = true
		}
	}
	if !replaced {
		s.accounts = append(s.accounts, acct)
	}
	s.mu.Unlock()
	s.persist()
}

// ServerAccounts returns the provisioned server accounts.
func (s *Server) ServerAccounts() []persistence.ServerAccount {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]persistence.ServerAccount(nil), s.accounts...)
}

// Snapshot captures registrations and server accounts.
func (s *Server) Snapshot() *persistence.State {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := &persistence.State{
		Servers:      append([]persistence.ServerAccount(nil), s.accounts...),
		NextLocation: s.regs.next,
	}
	for _, r := range s.regs.list() {
		st.Registrations = append(st.Registrations, r.record())
	}
	return st
}

// Restore replaces registrations and server accounts with st.
func (s *Server) Restore(st *persistence.State) error {
	regs := newRegistry()
	regs.next = st.NextLocation
	for _, rec := range st.Registrations {
		r, err := registrationFromRecord(rec)
		if err != nil {
			return fmt.Errorf("restore %s: %w", rec.Endpoint, err)
		}
		regs.put(r)
	}
	s.mu.Lock()
	s.regs = regs
	s.accounts = append([]persistence.ServerAccount(nil), st.Servers...)
	s.mu.Unlock()
	return nil
}

// LoadState restores the state saved in Config.Store, if any.
func (s *Server) LoadState() error {
	if s.config.Store == nil {
		return nil
	}
	st, err := s.config.Store.Load()
	if err != nil {
		return err
	}
	if st == nil {
		return nil
	}
	if err := s.Restore(st); err != nil {
		return err
	}
	s.logger.Info("state restored", "path", s.config.Store.Path(), "registrations", len(st.Registrations))
	return nil
}

func (s *Server) persist() {
	if s.config.Store == nil {
		return
	}
	if err := s.config.Store.Save(s.Snapshot()); err != nil {
		s.logger.Error("failed to persist state", "path", s.config.Store.Path(), "error", err)
	}
}

// expire drops registrations whose lifetime elapsed.
func (s *Server) expire() {
	s.mu.Lock()
	gone := s.regs.expire(s.config.Now())
	s.mu.Unlock()
	for _, r := range gone {
		s.logger.Info("registration expired", "endpoint", r.Endpoint, "location", r.Location)
		s.logState(log.StateEntityRegistration, "REGISTERED", "EXPIRED", r.Endpoint)
	}
	if len(gone) > 0 {
		s.persist()
	}
}

// PeerReset forgets all per-peer protocol state of the connected client:
// cached responses, block transfers and observations.
func (s *Server) PeerReset() {
	from := s.remote()
	s.cache.Purge(from)
	s.receiver.Purge(from)
	s.sender.Purge(from)
	s.observers.Purge(from)
	s.observing.Purge(from)
	s.logState(log.StateEntityPeer, "", "RESET", from)
}
