package rbac

type Permission string

type Role struct {
	Name        string       `json:"name"`
	Permissions []Permission `json:"permissions"`
}
