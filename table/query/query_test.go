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

package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/erigontech/tinybase/kv"
	"github.com/erigontech/tinybase/table"
)

type person struct {
	Name     string
	LastName string
	Age      int
}

func openPeople(t *testing.T) (*table.Table[person], *table.Index[person, string], *table.Index[person, string]) {
	t.Helper()
	db := kv.NewMem()
	t.Cleanup(func() { _ = db.Close() })
	tbl, err := table.Open[person](db, "people", table.Options[person]{})
	require.NoError(t, err)
	lastName, err := table.CreateIndex(tbl, "last_name", func(p person) string { return p.LastName }, false)
	require.NoError(t, err)
	name, err := table.CreateIndex(tbl, "name", func(p person) string { return p.Name }, false)
	require.NoError(t, err)
	return tbl, lastName, name
}

func TestSelectByBooleanOr(t *testing.T) {
	tbl, lastName, name := openPeople(t)
	_, err := tbl.Insert(person{Name: "John", LastName: "Smith", Age: 30})
	require.NoError(t, err)
	_, err = tbl.Insert(person{Name: "Bill", LastName: "Doe", Age: 40})
	require.NoError(t, err)
	_, err = tbl.Insert(person{Name: "Coraline", LastName: "Jones", Age: 25})
	require.NoError(t, err)

	q := New(tbl).WithCondition(Or(By(lastName, "Smith"), By(name, "Bill")))
	got, err := q.Select()
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestSelectByBooleanAnd(t *testing.T) {
	tbl, lastName, name := openPeople(t)
	_, err := tbl.Insert(person{Name: "John", LastName: "Smith", Age: 30})
	require.NoError(t, err)
	_, err = tbl.Insert(person{Name: "Bill", LastName: "Smith", Age: 40})
	require.NoError(t, err)

	q := New(tbl).WithCondition(And(By(lastName, "Smith"), By(name, "John")))
	got, err := q.Select()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "John", got[0].Name)
}

func TestSelectByNot(t *testing.T) {
	tbl, lastName, _ := openPeople(t)
	_, err := tbl.Insert(person{Name: "John", LastName: "Smith"})
	require.NoError(t, err)
	_, err = tbl.Insert(person{Name: "Bill", LastName: "Doe"})
	require.NoError(t, err)

	q := New(tbl).WithCondition(Not(By(lastName, "Smith")))
	got, err := q.Select()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bill", got[0].Name)
}

func TestSelectSkipsStaleIDs(t *testing.T) {
	tbl, lastName, _ := openPeople(t)
	id, err := tbl.Insert(person{Name: "John", LastName: "Smith"})
	require.NoError(t, err)
	_, err = tbl.Insert(person{Name: "Bill", LastName: "Smith"})
	require.NoError(t, err)

	_, err = tbl.Delete(id)
	require.NoError(t, err)

	q := New(tbl).WithCondition(By(lastName, "Smith"))
	got, err := q.Select()
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Bill", got[0].Name)
}

func TestUpdateIsBestEffort(t *testing.T) {
	tbl, lastName, _ := openPeople(t)
	_, err := tbl.Insert(person{Name: "John", LastName: "Smith", Age: 30})
	require.NoError(t, err)
	_, err = tbl.Insert(person{Name: "Bill", LastName: "Smith", Age: 40})
	require.NoError(t, err)

	nameUnique, err := table.CreateIndex(tbl, "name_unique", func(p person) string { return p.Name }, true)
	require.NoError(t, err)
	require.NoError(t, tbl.Constraint(table.Unique[person]("name_unique")))
	_ = nameUnique

	q := New(tbl).WithCondition(By(lastName, "Smith"))
	updated, failures, err := q.Update(func(p person) person {
		p.Name = "Same"
		return p
	})
	require.NoError(t, err)
	assert.Len(t, updated, 1)
	assert.Len(t, failures, 1)
}

func TestDeleteRemovesIndexEntries(t *testing.T) {
	tbl, lastName, _ := openPeople(t)
	_, err := tbl.Insert(person{Name: "John", LastName: "Smith"})
	require.NoError(t, err)
	_, err = tbl.Insert(person{Name: "Bill", LastName: "Smith"})
	require.NoError(t, err)

	q := New(tbl).WithCondition(By(lastName, "Smith"))
	removed, failures, err := q.Delete()
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	assert.Empty(t, failures)

	set, err := lastName.Select("Smith")
	require.NoError(t, err)
	assert.Equal(t, 0, set.Len())
}

func TestLegacyQueryMatchesDirectTree(t *testing.T) {
	tbl, lastName, name := openPeople(t)
	_, err := tbl.Insert(person{Name: "John", LastName: "Smith"})
	require.NoError(t, err)
	_, err = tbl.Insert(person{Name: "Bill", LastName: "Doe"})
	require.NoError(t, err)

	legacy := NewLegacy(tbl).By(By(lastName, "Smith")).By(By(name, "Bill")).Execute(OpOr)
	direct := New(tbl).WithCondition(Or(By(lastName, "Smith"), By(name, "Bill")))

	legacyRes, err := legacy.Select()
	require.NoError(t, err)
	directRes, err := direct.Select()
	require.NoError(t, err)
	assert.ElementsMatch(t, directRes, legacyRes)
}

func TestExplainRendersTree(t *testing.T) {
	tbl, lastName, name := openPeople(t)
	q := New(tbl).WithCondition(And(By(lastName, "Smith"), By(name, "John")))
	assert.Contains(t, q.Explain(), "And(")
	assert.Contains(t, q.Explain(), "last_name")
}
