package models

// Department owns sections and faculty rosters.
type Department struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	Code string `db:"code" json:"code"`
}

// Section is a student roster target within a department.
type Section struct {
	ID           string `db:"id" json:"id"`
	Name         string `db:"name" json:"name"`
	DepartmentID string `db:"department_id" json:"department_id"`
}
