package manager

import "time"

// Name returns the device's user-facing label.
func (m *Manager) Name(idx int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.table.At(idx)
	if err != nil {
		return "", err
	}
	return rec.Name, nil
}

// Failure reports the device's failure string — "silent" if it has
// never been detected or has gone quiet, "" otherwise.
func (m *Manager) Failure(idx int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.table.At(idx)
	if err != nil {
		return "", err
	}
	if rec.Silent() {
		return "silent", nil
	}
	return "", nil
}

// Status returns the device's last-observed relay state — get(i).
func (m *Manager) Status(idx int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.table.At(idx)
	if err != nil {
		return false, err
	}
	return rec.Status, nil
}

// Commanded returns the state the device is being driven toward.
func (m *Manager) Commanded(idx int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.table.At(idx)
	if err != nil {
		return false, err
	}
	return rec.Commanded, nil
}

// Deadline returns the device's pulse deadline, zero if none.
func (m *Manager) Deadline(idx int) (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, err := m.table.At(idx)
	if err != nil {
		return time.Time{}, err
	}
	return rec.Deadline, nil
}
