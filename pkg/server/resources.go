package server

import (
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/lwm2m-harness/lwm2m-go/pkg/coap"
)

// Resource is a representation hosted by the server, such as a firmware
// image or a value clients may observe.
type Resource struct {
	Format    coap.ContentFormat
	Body      []byte
	UpdatedAt time.Time
}

// SetResource hosts body at path ("/fw", "/1337/0/1"). An existing
// resource is replaced; ongoing Block2 transfers keep their old
// representation until restarted.
func (s *Server) SetResource(path string, format coap.ContentFormat, body []byte) {
	key := coap.ParsePath(path).String()
	s.mu.Lock()
	s.resources[key] = &Resource{
		Format:    format,
		Body:      append([]byte(nil), body...),
		UpdatedAt: s.config.Now(),
	}
	s.mu.Unlock()
}

// LoadResourceFile hosts the contents of file at path as an octet stream.
func (s *Server) LoadResourceFile(path, file string) error {
	body, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("load resource: %w", err)
	}
	s.SetResource(path, coap.OctetStream, body)
	s.logger.Info("resource loaded", "path", path, "file", file, "size", len(body))
	return nil
}

// Resource returns a copy of the resource at path.
func (s *Server) Resource(path string) (Resource, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.resources[coap.ParsePath(path).String()]
	if !ok {
		return Resource{}, false
	}
	c := *r
	c.Body = append([]byte(nil), r.Body...)
	return c, true
}

// RemoveResource stops hosting path.
func (s *Server) RemoveResource(path string) bool {
	key := coap.ParsePath(path).String()
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.resources[key]
	delete(s.resources, key)
	return ok
}

// Resources returns the hosted paths in sorted order.
func (s *Server) Resources() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.resources))
	for p := range s.resources {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}
