package domain

import "testing"

func TestValidateSourceDepartment(t *testing.T) {
	self := "d1"
	other := "d0"
	negative := -1
	tests := []struct {
		name    string
		dept    SourceDepartment
		wantErr bool
	}{
		{name: "valid root", dept: SourceDepartment{ExternalID: "d1", Name: "Eng"}, wantErr: false},
		{name: "valid child", dept: SourceDepartment{ExternalID: "d1", ParentExternalID: &other}, wantErr: false},
		{name: "missing id", dept: SourceDepartment{Name: "Eng"}, wantErr: true},
		{name: "blank id", dept: SourceDepartment{ExternalID: "   "}, wantErr: true},
		{name: "self parent is left to cycle detection", dept: SourceDepartment{ExternalID: "d1", ParentExternalID: &self}, wantErr: false},
		{name: "negative level hint is accepted", dept: SourceDepartment{ExternalID: "d1", DeclaredLevel: &negative}, wantErr: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSourceDepartment(tt.dept)
			if tt.wantErr && err == nil {
				t.Error("ValidateSourceDepartment() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateSourceDepartment() unexpected error: %v", err)
			}
		})
	}
}

func TestValidateSourceUser(t *testing.T) {
	tests := []struct {
		name    string
		user    SourceUser
		wantErr bool
	}{
		{name: "valid", user: SourceUser{ExternalID: "u1"}, wantErr: false},
		{name: "missing id", user: SourceUser{DisplayName: "Ann"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSourceUser(tt.user)
			if tt.wantErr && err == nil {
				t.Error("ValidateSourceUser() expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("ValidateSourceUser() unexpected error: %v", err)
			}
		})
	}
}

func TestValidateDriver(t *testing.T) {
	for _, d := range []string{"mysql", "sqlite3"} {
		if err := ValidateDriver(d); err != nil {
			t.Errorf("ValidateDriver(%q) unexpected error: %v", d, err)
		}
	}
	for _, d := range []string{"", "postgres", "MySQL"} {
		if err := ValidateDriver(d); err == nil {
			t.Errorf("ValidateDriver(%q) expected error", d)
		}
	}
}
