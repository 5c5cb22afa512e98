// Copyright 2024 The Erigon Authors
// This file is part of Erigon.
//
// Erigon is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Erigon is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Erigon. If not, see <http://www.gnu.org/licenses/>.

package table

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/tinybase/kv"
)

type person struct {
	Name     string
	LastName string
	Age      int
}

func openPeople(t *testing.T) *Table[person] {
	t.Helper()
	db := kv.NewMem()
	t.Cleanup(func() { _ = db.Close() })
	tbl, err := Open[person](db, "people", Options[person]{})
	require.NoError(t, err)
	return tbl
}

// Scenario 1: basic insert + index lookup (spec.md §8).
func TestInsertAndIndexLookup(t *testing.T) {
	tbl := openPeople(t)
	lastName, err := CreateIndex(tbl, "last_name", func(p person) string { return p.LastName }, false)
	require.NoError(t, err)

	id1, err := tbl.Insert(person{Name: "John", LastName: "Smith", Age: 30})
	require.NoError(t, err)
	id2, err := tbl.Insert(person{Name: "Bill", LastName: "Smith", Age: 40})
	require.NoError(t, err)
	_, err = tbl.Insert(person{Name: "Coraline", LastName: "Jones", Age: 25})
	require.NoError(t, err)

	assert.EqualValues(t, 1, id1)
	assert.EqualValues(t, 2, id2)

	set, err := lastName.Select("Smith")
	require.NoError(t, err)
	assert.ElementsMatch(t, []uint64{id1, id2}, set.ToSortedSlice())
}

// Scenario 2: unique constraint rejection.
func TestUniqueConstraintRejection(t *testing.T) {
	tbl := openPeople(t)
	nameIdx, err := CreateIndex(tbl, "name", func(p person) string { return p.Name }, true)
	require.NoError(t, err)
	require.NoError(t, tbl.Constraint(Unique[person]("name")))

	_, err = tbl.Insert(person{Name: "John", LastName: "Smith", Age: 30})
	require.NoError(t, err)

	_, err = tbl.Insert(person{Name: "John", LastName: "Doe", Age: 20})
	require.Error(t, err)
	var cerr *ConstraintError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindUnique, cerr.Kind)
	assert.Equal(t, "name", cerr.Name)

	set, err := nameIdx.Select("John")
	require.NoError(t, err)
	assert.Equal(t, 1, set.Len())
}

// Scenario 3: check constraint rejection.
func TestCheckConstraintRejection(t *testing.T) {
	tbl := openPeople(t)
	require.NoError(t, tbl.Constraint(Check[person]("no-dot-in-name", func(p person) bool {
		return !strings.Contains(p.Name, ".")
	})))

	_, err := tbl.Insert(person{Name: "J.Smith", LastName: "Smith", Age: 10})
	require.Error(t, err)
	var cerr *ConstraintError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, KindCheck, cerr.Kind)
}

func TestGetUpdateDelete(t *testing.T) {
	tbl := openPeople(t)
	lastName, err := CreateIndex(tbl, "last_name", func(p person) string { return p.LastName }, false)
	require.NoError(t, err)

	id, err := tbl.Insert(person{Name: "John", LastName: "Smith", Age: 30})
	require.NoError(t, err)

	got, ok, err := tbl.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "John", got.Name)

	old, err := tbl.Update(id, person{Name: "John", LastName: "Brown", Age: 31})
	require.NoError(t, err)
	assert.Equal(t, "Smith", old.LastName)

	smithSet, err := lastName.Select("Smith")
	require.NoError(t, err)
	assert.Equal(t, 0, smithSet.Len())
	brownSet, err := lastName.Select("Brown")
	require.NoError(t, err)
	assert.True(t, brownSet.Contains(id))

	removed, err := tbl.Delete(id)
	require.NoError(t, err)
	assert.Equal(t, "Brown", removed.LastName)

	_, ok, err = tbl.Get(id)
	require.NoError(t, err)
	assert.False(t, ok)

	// Scenario 6: idempotent delete.
	_, err = tbl.Delete(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateAndDeleteMissingReturnNotFound(t *testing.T) {
	tbl := openPeople(t)
	_, _, err := func() (person, bool, error) { return tbl.Get(999) }()
	require.NoError(t, err)

	_, err = tbl.Update(999, person{})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = tbl.Delete(999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestIndexBackfillOnExistingData(t *testing.T) {
	tbl := openPeople(t)
	_, err := tbl.Insert(person{Name: "John", LastName: "Smith", Age: 30})
	require.NoError(t, err)
	_, err = tbl.Insert(person{Name: "Bill", LastName: "Smith", Age: 40})
	require.NoError(t, err)

	lastName, err := CreateIndex(tbl, "last_name", func(p person) string { return p.LastName }, false)
	require.NoError(t, err)

	set, err := lastName.Select("Smith")
	require.NoError(t, err)
	assert.Equal(t, 2, set.Len())
}

func TestIndexBackfillUniquenessViolationFailsAtomically(t *testing.T) {
	tbl := openPeople(t)
	_, err := tbl.Insert(person{Name: "John", LastName: "Smith", Age: 30})
	require.NoError(t, err)
	_, err = tbl.Insert(person{Name: "Bill", LastName: "Smith", Age: 40})
	require.NoError(t, err)

	_, err = CreateIndex(tbl, "last_name_unique", func(p person) string { return p.LastName }, true)
	require.Error(t, err)

	trees, lerr := tbl.db.ListTrees()
	require.NoError(t, lerr)
	for _, tr := range trees {
		assert.NotContains(t, tr, "last_name_unique")
	}
}

func TestRetroactiveUniqueConstraintVerifiesAndMigrates(t *testing.T) {
	tbl := openPeople(t)
	nameIdx, err := CreateIndex(tbl, "name", func(p person) string { return p.Name }, false)
	require.NoError(t, err)
	_, err = tbl.Insert(person{Name: "John"})
	require.NoError(t, err)

	require.NoError(t, tbl.Constraint(Unique[person]("name")))
	assert.True(t, nameIdx.IsUnique())

	_, err = tbl.Insert(person{Name: "John"})
	require.Error(t, err)
}

func TestRetroactiveUniqueConstraintRejectsExistingDuplicates(t *testing.T) {
	tbl := openPeople(t)
	_, err := CreateIndex(tbl, "last_name", func(p person) string { return p.LastName }, false)
	require.NoError(t, err)
	_, err = tbl.Insert(person{Name: "John", LastName: "Smith"})
	require.NoError(t, err)
	_, err = tbl.Insert(person{Name: "Bill", LastName: "Smith"})
	require.NoError(t, err)

	err = tbl.Constraint(Unique[person]("last_name"))
	require.Error(t, err)
	var cerr *ConstraintError
	require.ErrorAs(t, err, &cerr)
}

func TestReopenedTableRequiresIndexRedeclaration(t *testing.T) {
	db := kv.NewMem()
	defer db.Close()

	tbl, err := Open[person](db, "people", Options[person]{})
	require.NoError(t, err)
	_, err = CreateIndex(tbl, "last_name", func(p person) string { return p.LastName }, false)
	require.NoError(t, err)
	id, err := tbl.Insert(person{Name: "John", LastName: "Smith"})
	require.NoError(t, err)

	reopened, err := Open[person](db, "people", Options[person]{})
	require.NoError(t, err)
	got, ok, err := reopened.Get(id)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Smith", got.LastName)
	assert.Empty(t, reopened.indexes, "indexes must not survive a re-open without re-declaration")

	lastName, err := CreateIndex(reopened, "last_name", func(p person) string { return p.LastName }, false)
	require.NoError(t, err)
	set, err := lastName.Select("Smith")
	require.NoError(t, err)
	assert.True(t, set.Contains(id))
}

func TestClosedTableRejectsOperations(t *testing.T) {
	tbl := openPeople(t)
	tbl.Close()

	_, err := tbl.Insert(person{Name: "x"})
	var berr *BackendError
	require.ErrorAs(t, err, &berr)
	assert.ErrorIs(t, berr, ErrClosed)
}
