package capture

// Cookie is one storage-state cookie. Expires is a POSIX second; nil or -1
// marks a session cookie.
type Cookie struct {
	Name     string   `json:"name"`
	Value    string   `json:"value"`
	Domain   string   `json:"domain"`
	Path     string   `json:"path"`
	Expires  *float64 `json:"expires,omitempty"`
	HTTPOnly bool     `json:"httpOnly"`
	Secure   bool     `json:"secure"`
	SameSite string   `json:"sameSite,omitempty"`
}

// IsSession reports whether the cookie has no absolute expiry.
func (c Cookie) IsSession() bool {
	return c.Expires == nil || *c.Expires == -1
}

// StorageItem is one localStorage key/value pair.
type StorageItem struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Origin groups localStorage entries for a scheme://host origin.
type Origin struct {
	Origin       string        `json:"origin"`
	LocalStorage []StorageItem `json:"localStorage"`
}

// StorageState is the cookie and localStorage bundle injected into a browser
// session before navigation.
type StorageState struct {
	Cookies []Cookie `json:"cookies"`
	Origins []Origin `json:"origins"`
}

// Empty reports whether the state carries nothing to inject.
func (s StorageState) Empty() bool {
	return len(s.Cookies) == 0 && len(s.Origins) == 0
}

// LocalStorageCount totals the localStorage entries across origins.
func (s StorageState) LocalStorageCount() int {
	n := 0
	for _, o := range s.Origins {
		n += len(o.LocalStorage)
	}
	return n
}
