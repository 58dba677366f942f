// Package academia is the curriculum approval backend: courses, programs, majors and cohorts
// move through configurable approval workflows and every change is kept in an audited history.
//
// The API server lives in apps/api and the admin CLI in apps/admin.
package academia
