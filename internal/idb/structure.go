package idb

import (
	"database/sql"

	"github.com/cockroachdb/errors"
)

// rootRepeatSentinel keeps the synthetic root context open for the whole
// row walk when nesting variable structures.
const rootRepeatSentinel = 1 << 30

// Structure returns the layout tree for a packet type, picking the static or
// variable flavor by the packet's identity record. ok is false when the
// packet type is unknown to this catalog.
func (c *IDB) Structure(serviceType, serviceSubtype, pi1 int) (*StructureNode, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.structureLocked(identKey{serviceType, serviceSubtype, pi1})
}

func (c *IDB) structureLocked(key identKey) (*StructureNode, bool, error) {
	info, ok, err := c.packetTypeInfoLocked(key)
	if err != nil || !ok {
		return nil, false, err
	}
	if info.IsVariable() {
		return c.variableStructureLocked(key, info)
	}
	return c.staticStructureLocked(key, info)
}

// StaticStructure builds the flat layout of a fixed-format packet from its
// absolute field offsets, ordered by offset ascending.
func (c *IDB) StaticStructure(serviceType, serviceSubtype, pi1 int) (*StructureNode, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := identKey{serviceType, serviceSubtype, pi1}
	info, ok, err := c.packetTypeInfoLocked(key)
	if err != nil || !ok {
		return nil, false, err
	}
	return c.staticStructureLocked(key, info)
}

// VariableStructure builds the nested layout of a variable-format packet
// from its ordinal field positions and declared repeat-group sizes.
func (c *IDB) VariableStructure(serviceType, serviceSubtype, pi1 int) (*StructureNode, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := identKey{serviceType, serviceSubtype, pi1}
	info, ok, err := c.packetTypeInfoLocked(key)
	if err != nil || !ok {
		return nil, false, err
	}
	return c.variableStructureLocked(key, info)
}

func (c *IDB) staticStructureLocked(key identKey, info PacketTypeInfo) (*StructureNode, bool, error) {
	skey := structKey{ident: key, variable: false}
	if tree, ok := c.structures[skey]; ok {
		return tree, true, nil
	}
	db, err := c.conn()
	if err != nil {
		return nil, false, err
	}

	rows, err := db.Query(`
		SELECT PLF.PLF_NAME, PLF.PLF_OFFBY, PLF.PLF_OFFBI,
		       PCF.PCF_DESCR, PCF.PCF_PTC, PCF.PCF_PFC, PCF.PCF_WIDTH,
		       PCF.PCF_CURTX, PCF.PCF_CATEG, PCF.PCF_UNIT,
		       COALESCE(s2k.S2K_TYPE, '')
		FROM PLF
		JOIN PCF ON PCF.PCF_NAME = PLF.PLF_NAME
		LEFT JOIN tblConfigS2KParameterTypes s2k
		     ON s2k.PTC = PCF.PCF_PTC
		    AND PCF.PCF_PFC >= s2k.PFC_LB AND PCF.PCF_PFC <= s2k.PFC_UB
		WHERE PLF.PLF_SPID = ?
		ORDER BY PLF.PLF_OFFBY ASC, PLF.PLF_OFFBI ASC`,
		info.SPID)
	if err != nil {
		return nil, false, errors.Wrapf(err, "idb: static structure SPID %d", info.SPID)
	}
	defer rows.Close()

	root := &StructureNode{Name: "top"}
	for rows.Next() {
		p := &ParameterInfo{Kind: Static}
		var curtx, unit, categ sql.NullString
		if err := rows.Scan(&p.Name, &p.ByteOffset, &p.BitOffset,
			&p.Description, &p.PTC, &p.PFC, &p.Width,
			&curtx, &categ, &unit, &p.SType); err != nil {
			return nil, false, errors.Wrapf(err, "idb: static structure SPID %d", info.SPID)
		}
		p.Curtx = curtx.String
		p.Categ = categ.String
		p.Unit = unit.String
		root.Children = append(root.Children, &StructureNode{Name: p.Name, Param: p})
	}
	if err := rows.Err(); err != nil {
		return nil, false, errors.Wrapf(err, "idb: static structure SPID %d", info.SPID)
	}
	c.structures[skey] = root
	return root, true, nil
}

func (c *IDB) variableStructureLocked(key identKey, info PacketTypeInfo) (*StructureNode, bool, error) {
	skey := structKey{ident: key, variable: true}
	if tree, ok := c.structures[skey]; ok {
		return tree, true, nil
	}
	db, err := c.conn()
	if err != nil {
		return nil, false, err
	}

	rows, err := db.Query(`
		SELECT VPD.VPD_POS, VPD.VPD_NAME, VPD.VPD_GRPSIZE, VPD.VPD_OFFSET,
		       PCF.PCF_DESCR, PCF.PCF_PTC, PCF.PCF_PFC, PCF.PCF_WIDTH,
		       PCF.PCF_CURTX, PCF.PCF_CATEG, PCF.PCF_UNIT,
		       COALESCE(s2k.S2K_TYPE, '')
		FROM VPD
		JOIN PCF ON PCF.PCF_NAME = VPD.VPD_NAME
		LEFT JOIN tblConfigS2KParameterTypes s2k
		     ON s2k.PTC = PCF.PCF_PTC
		    AND PCF.PCF_PFC >= s2k.PFC_LB AND PCF.PCF_PFC <= s2k.PFC_UB
		WHERE VPD.VPD_TPSD = ?
		ORDER BY VPD.VPD_POS ASC`,
		info.TPSD)
	if err != nil {
		return nil, false, errors.Wrapf(err, "idb: variable structure TPSD %d", info.TPSD)
	}
	defer rows.Close()

	var params []*ParameterInfo
	for rows.Next() {
		p := &ParameterInfo{Kind: Variable}
		var curtx, unit, categ sql.NullString
		if err := rows.Scan(&p.Position, &p.Name, &p.GroupSize, &p.BitShift,
			&p.Description, &p.PTC, &p.PFC, &p.Width,
			&curtx, &categ, &unit, &p.SType); err != nil {
			return nil, false, errors.Wrapf(err, "idb: variable structure TPSD %d", info.TPSD)
		}
		p.Curtx = curtx.String
		p.Categ = categ.String
		p.Unit = unit.String
		params = append(params, p)
	}
	if err := rows.Err(); err != nil {
		return nil, false, errors.Wrapf(err, "idb: variable structure TPSD %d", info.TPSD)
	}
	tree := buildVariableTree(params)
	c.structures[skey] = tree
	return tree, true, nil
}

// buildVariableTree nests an ordered field list into a repeat-group tree.
// It keeps a stack of open groups, the synthetic root staying open for the
// whole walk: each new field decrements every open group's remaining span,
// groups whose span is exhausted are closed, the field attaches to the
// innermost group still open, and a field with a positive declared group
// size opens a new group of that span. Declared sizes only shape the tree;
// runtime repeat counts are read from the packet during parsing.
func buildVariableTree(params []*ParameterInfo) *StructureNode {
	root := &StructureNode{Name: "top"}
	type openGroup struct {
		node      *StructureNode
		remaining int
	}
	stack := []*openGroup{{node: root, remaining: rootRepeatSentinel}}
	for _, p := range params {
		for _, g := range stack {
			g.remaining--
		}
		for len(stack) > 1 && stack[len(stack)-1].remaining < 0 {
			stack = stack[:len(stack)-1]
		}
		node := &StructureNode{Name: p.Name, Param: p}
		innermost := stack[len(stack)-1]
		innermost.node.Children = append(innermost.node.Children, node)
		if p.GroupSize > 0 {
			stack = append(stack, &openGroup{node: node, remaining: p.GroupSize})
		}
	}
	return root
}
