package subjects

// Repo manages storage of subject records.
type Repo interface {
	Upsert(subject *Subject) error
	GetByID(id string) (*Subject, error)
	GetByUsername(username string) (*Subject, error)
	List(offset, limit int) ([]*Subject, error)
}
