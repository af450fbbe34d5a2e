package timeline

// Service publishes timeline state and renders it for readers. It delegates
// storage to Repository.
type Service struct {
	repo Repository
}

// NewService returns a Service that uses repo.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Publish records the current state of t under its output name.
func (s *Service) Publish(t *Timeline) error {
	return s.repo.Publish(t.Snapshot())
}

// Close tears t down and publishes its closed state.
func (s *Service) Close(t *Timeline) error {
	t.Close()
	return s.Publish(t)
}

// GetSnapshot returns the latest snapshot of output.
func (s *Service) GetSnapshot(output string) (Snapshot, bool) {
	return s.repo.Get(output)
}

// GetPlaylist returns the HLS playlist of output's segments.
func (s *Service) GetPlaylist(output string) (m3u8 string, ok bool) {
	snap, ok := s.repo.Get(output)
	if !ok {
		return "", false
	}
	return BuildPlaylist(snap.Segments), true
}

// Outputs lists the published output names.
func (s *Service) Outputs() []string {
	return s.repo.Outputs()
}
