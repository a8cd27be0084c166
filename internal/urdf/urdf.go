// Package urdf parses the subset of the Unified Robot Description Format
// needed to load scene and robot models: links with mass and collision
// geometry, and the joint tree connecting them.
package urdf

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"gonum.org/v1/gonum/spatial/r3"
)

// ErrLinkNotFound marks a joint referencing a link the document never
// declares.
var ErrLinkNotFound = errors.New("link not found")

type JointType string

const (
	JointRevolute   JointType = "revolute"
	JointContinuous JointType = "continuous"
	JointPrismatic  JointType = "prismatic"
	JointFixed      JointType = "fixed"
)

// Actuated reports whether a joint of this type accepts motor commands.
func (t JointType) Actuated() bool {
	switch t {
	case JointRevolute, JointContinuous, JointPrismatic:
		return true
	default:
		return false
	}
}

type GeometryKind string

const (
	GeometryNone     GeometryKind = ""
	GeometryBox      GeometryKind = "box"
	GeometryCylinder GeometryKind = "cylinder"
	GeometrySphere   GeometryKind = "sphere"
)

// Pose is a position plus fixed-axis roll/pitch/yaw orientation, both in the
// parent frame.
type Pose struct {
	XYZ r3.Vec
	RPY r3.Vec
}

type Geometry struct {
	Kind   GeometryKind
	Size   r3.Vec // box edge lengths
	Radius float64
	Length float64
}

type Inertial struct {
	Mass   float64
	Origin Pose
}

type Link struct {
	Name      string
	Inertial  Inertial
	Collision Geometry
}

// Limit carries the position, effort and velocity bounds of a joint.
// Continuous joints have no position bounds; Limited is false for them.
type Limit struct {
	Lower    float64
	Upper    float64
	Limited  bool
	Effort   float64
	Velocity float64
}

type Joint struct {
	Name   string
	Type   JointType
	Parent string
	Child  string
	Origin Pose
	Axis   r3.Vec
	Limit  Limit
}

// Model is a parsed robot or scene description. Links and Joints keep
// document order, which backends use as the joint index order.
type Model struct {
	Name   string
	Links  []Link
	Joints []Joint

	linkIndex  map[string]int
	jointIndex map[string]int
}

// Link returns the named link.
func (m *Model) Link(name string) (Link, bool) {
	i, ok := m.linkIndex[name]
	if !ok {
		return Link{}, false
	}
	return m.Links[i], true
}

// Joint returns the named joint.
func (m *Model) Joint(name string) (Joint, bool) {
	i, ok := m.jointIndex[name]
	if !ok {
		return Joint{}, false
	}
	return m.Joints[i], true
}

// RootLink returns the single link that is not the child of any joint.
func (m *Model) RootLink() Link {
	children := make(map[string]struct{}, len(m.Joints))
	for _, j := range m.Joints {
		children[j.Child] = struct{}{}
	}
	for _, l := range m.Links {
		if _, ok := children[l.Name]; !ok {
			return l
		}
	}
	return Link{}
}

// ActuatedJoints returns the motor-driven joints in document order.
func (m *Model) ActuatedJoints() []Joint {
	out := make([]Joint, 0, len(m.Joints))
	for _, j := range m.Joints {
		if j.Type.Actuated() {
			out = append(out, j)
		}
	}
	return out
}

// TotalMass sums the link masses.
func (m *Model) TotalMass() float64 {
	var total float64
	for _, l := range m.Links {
		total += l.Inertial.Mass
	}
	return total
}

// Parse reads a URDF document and validates its structure.
func Parse(r io.Reader) (*Model, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, fmt.Errorf("read urdf: %w", err)
	}

	root := doc.SelectElement("robot")
	if root == nil {
		return nil, errors.New("urdf has no robot element")
	}

	m := &Model{
		Name:       root.SelectAttrValue("name", ""),
		linkIndex:  make(map[string]int),
		jointIndex: make(map[string]int),
	}
	if m.Name == "" {
		return nil, errors.New("robot name is required")
	}

	for _, el := range root.SelectElements("link") {
		link, err := parseLink(el)
		if err != nil {
			return nil, err
		}
		if _, exists := m.linkIndex[link.Name]; exists {
			return nil, fmt.Errorf("duplicate link: %s", link.Name)
		}
		m.linkIndex[link.Name] = len(m.Links)
		m.Links = append(m.Links, link)
	}
	if len(m.Links) == 0 {
		return nil, errors.New("urdf has no links")
	}

	for _, el := range root.SelectElements("joint") {
		joint, err := parseJoint(el)
		if err != nil {
			return nil, err
		}
		if _, exists := m.jointIndex[joint.Name]; exists {
			return nil, fmt.Errorf("duplicate joint: %s", joint.Name)
		}
		m.jointIndex[joint.Name] = len(m.Joints)
		m.Joints = append(m.Joints, joint)
	}

	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// ParseString parses a URDF document held in memory.
func ParseString(s string) (*Model, error) {
	return Parse(strings.NewReader(s))
}

// LoadFile parses a URDF document from disk.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	m, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

func (m *Model) validate() error {
	childCount := make(map[string]int, len(m.Links))
	for _, j := range m.Joints {
		if _, ok := m.linkIndex[j.Parent]; !ok {
			return fmt.Errorf("joint %s: %w: parent %s", j.Name, ErrLinkNotFound, j.Parent)
		}
		if _, ok := m.linkIndex[j.Child]; !ok {
			return fmt.Errorf("joint %s: %w: child %s", j.Name, ErrLinkNotFound, j.Child)
		}
		if j.Parent == j.Child {
			return fmt.Errorf("joint %s connects link %s to itself", j.Name, j.Parent)
		}
		childCount[j.Child]++
		if childCount[j.Child] > 1 {
			return fmt.Errorf("link %s has more than one parent joint", j.Child)
		}
	}

	roots := 0
	for _, l := range m.Links {
		if childCount[l.Name] == 0 {
			roots++
		}
	}
	if roots != 1 {
		return fmt.Errorf("urdf must have exactly one root link, found %d", roots)
	}
	return nil
}

func parseLink(el *etree.Element) (Link, error) {
	link := Link{Name: el.SelectAttrValue("name", "")}
	if link.Name == "" {
		return Link{}, errors.New("link name is required")
	}

	if inertial := el.SelectElement("inertial"); inertial != nil {
		if massEl := inertial.SelectElement("mass"); massEl != nil {
			mass, err := parseFloatAttr(massEl, "value")
			if err != nil {
				return Link{}, fmt.Errorf("link %s: mass: %w", link.Name, err)
			}
			if mass < 0 {
				return Link{}, fmt.Errorf("link %s: mass must be >= 0", link.Name)
			}
			link.Inertial.Mass = mass
		}
		origin, err := parsePose(inertial.SelectElement("origin"))
		if err != nil {
			return Link{}, fmt.Errorf("link %s: inertial origin: %w", link.Name, err)
		}
		link.Inertial.Origin = origin
	}

	if collision := el.SelectElement("collision"); collision != nil {
		geom, err := parseGeometry(collision.SelectElement("geometry"))
		if err != nil {
			return Link{}, fmt.Errorf("link %s: collision: %w", link.Name, err)
		}
		link.Collision = geom
	}
	return link, nil
}

func parseJoint(el *etree.Element) (Joint, error) {
	joint := Joint{
		Name: el.SelectAttrValue("name", ""),
		Type: JointType(el.SelectAttrValue("type", "")),
		// URDF's default joint axis.
		Axis: r3.Vec{X: 1},
	}
	if joint.Name == "" {
		return Joint{}, errors.New("joint name is required")
	}
	switch joint.Type {
	case JointRevolute, JointContinuous, JointPrismatic, JointFixed:
	default:
		return Joint{}, fmt.Errorf("joint %s: unsupported type %q", joint.Name, joint.Type)
	}

	parent := el.SelectElement("parent")
	child := el.SelectElement("child")
	if parent == nil || child == nil {
		return Joint{}, fmt.Errorf("joint %s: parent and child are required", joint.Name)
	}
	joint.Parent = parent.SelectAttrValue("link", "")
	joint.Child = child.SelectAttrValue("link", "")
	if joint.Parent == "" || joint.Child == "" {
		return Joint{}, fmt.Errorf("joint %s: parent and child link names are required", joint.Name)
	}

	origin, err := parsePose(el.SelectElement("origin"))
	if err != nil {
		return Joint{}, fmt.Errorf("joint %s: origin: %w", joint.Name, err)
	}
	joint.Origin = origin

	if axisEl := el.SelectElement("axis"); axisEl != nil {
		axis, err := parseVec3(axisEl.SelectAttrValue("xyz", ""))
		if err != nil {
			return Joint{}, fmt.Errorf("joint %s: axis: %w", joint.Name, err)
		}
		joint.Axis = axis
	}

	if limitEl := el.SelectElement("limit"); limitEl != nil {
		limit, err := parseLimit(limitEl, joint.Type)
		if err != nil {
			return Joint{}, fmt.Errorf("joint %s: limit: %w", joint.Name, err)
		}
		joint.Limit = limit
	} else if joint.Type == JointRevolute || joint.Type == JointPrismatic {
		return Joint{}, fmt.Errorf("joint %s: %s joints require a limit element", joint.Name, joint.Type)
	}
	return joint, nil
}

func parseLimit(el *etree.Element, t JointType) (Limit, error) {
	var limit Limit
	var err error

	if v := el.SelectAttrValue("effort", ""); v != "" {
		if limit.Effort, err = strconv.ParseFloat(v, 64); err != nil {
			return Limit{}, fmt.Errorf("effort: %w", err)
		}
	}
	if v := el.SelectAttrValue("velocity", ""); v != "" {
		if limit.Velocity, err = strconv.ParseFloat(v, 64); err != nil {
			return Limit{}, fmt.Errorf("velocity: %w", err)
		}
	}

	lower := el.SelectAttrValue("lower", "")
	upper := el.SelectAttrValue("upper", "")
	if lower != "" || upper != "" {
		if limit.Lower, err = parseFloatDefault(lower, 0); err != nil {
			return Limit{}, fmt.Errorf("lower: %w", err)
		}
		if limit.Upper, err = parseFloatDefault(upper, 0); err != nil {
			return Limit{}, fmt.Errorf("upper: %w", err)
		}
		if limit.Lower > limit.Upper {
			return Limit{}, fmt.Errorf("lower %g exceeds upper %g", limit.Lower, limit.Upper)
		}
		limit.Limited = true
	} else if t == JointRevolute || t == JointPrismatic {
		// URDF defaults missing bounds to zero, which pins the joint.
		limit.Limited = true
	}
	return limit, nil
}

func parseGeometry(el *etree.Element) (Geometry, error) {
	if el == nil {
		return Geometry{}, nil
	}
	if box := el.SelectElement("box"); box != nil {
		size, err := parseVec3(box.SelectAttrValue("size", ""))
		if err != nil {
			return Geometry{}, fmt.Errorf("box size: %w", err)
		}
		return Geometry{Kind: GeometryBox, Size: size}, nil
	}
	if cyl := el.SelectElement("cylinder"); cyl != nil {
		radius, err := parseFloatAttr(cyl, "radius")
		if err != nil {
			return Geometry{}, fmt.Errorf("cylinder radius: %w", err)
		}
		length, err := parseFloatAttr(cyl, "length")
		if err != nil {
			return Geometry{}, fmt.Errorf("cylinder length: %w", err)
		}
		return Geometry{Kind: GeometryCylinder, Radius: radius, Length: length}, nil
	}
	if sphere := el.SelectElement("sphere"); sphere != nil {
		radius, err := parseFloatAttr(sphere, "radius")
		if err != nil {
			return Geometry{}, fmt.Errorf("sphere radius: %w", err)
		}
		return Geometry{Kind: GeometrySphere, Radius: radius}, nil
	}
	return Geometry{}, nil
}

func parsePose(el *etree.Element) (Pose, error) {
	if el == nil {
		return Pose{}, nil
	}
	var pose Pose
	var err error

	if v := el.SelectAttrValue("xyz", ""); v != "" {
		if pose.XYZ, err = parseVec3(v); err != nil {
			return Pose{}, fmt.Errorf("xyz: %w", err)
		}
	}
	if v := el.SelectAttrValue("rpy", ""); v != "" {
		if pose.RPY, err = parseVec3(v); err != nil {
			return Pose{}, fmt.Errorf("rpy: %w", err)
		}
	}
	return pose, nil
}

func parseVec3(s string) (r3.Vec, error) {
	fields := strings.Fields(s)
	if len(fields) != 3 {
		return r3.Vec{}, fmt.Errorf("expected 3 components, got %d", len(fields))
	}
	var out [3]float64
	for i, f := range fields {
		v, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return r3.Vec{}, fmt.Errorf("component %d: %w", i, err)
		}
		out[i] = v
	}
	return r3.Vec{X: out[0], Y: out[1], Z: out[2]}, nil
}

func parseFloatAttr(el *etree.Element, attr string) (float64, error) {
	v := el.SelectAttrValue(attr, "")
	if v == "" {
		return 0, fmt.Errorf("missing attribute %s", attr)
	}
	return strconv.ParseFloat(v, 64)
}

func parseFloatDefault(s string, def float64) (float64, error) {
	if s == "" {
		return def, nil
	}
	return strconv.ParseFloat(s, 64)
}
